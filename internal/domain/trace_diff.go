package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/pmezard/go-difflib/difflib"

	"gooze.dev/pkg/mutrun/internal/adapter"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// ClassSet is a set of class names.
type ClassSet map[string]struct{}

// Add inserts every name.
func (s ClassSet) Add(names ...string) {
	for _, name := range names {
		s[name] = struct{}{}
	}
}

// Union adds every member of other.
func (s ClassSet) Union(other ClassSet) {
	for name := range other {
		s[name] = struct{}{}
	}
}

// Has reports membership.
func (s ClassSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s ClassSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// DiffRecords walks the union of tests, classes and observation points of a
// and b once and flags every class with a point that is present on only one
// side or differs between them.
func DiffRecords(a, b m.TraceRecord) ClassSet {
	differing := ClassSet{}

	for test := range unionKeys(a, b) {
		classesA, classesB := a[test], b[test]

		for class := range unionKeys(classesA, classesB) {
			if differing.Has(class) {
				continue
			}

			obsA, okA := classesA[class]
			obsB, okB := classesB[class]

			if okA != okB || observationsDiffer(obsA, obsB) {
				differing.Add(class)
			}
		}
	}

	return differing
}

func observationsDiffer(a, b m.Observations) bool {
	if len(a) != len(b) {
		return true
	}

	for point, value := range a {
		if other, ok := b[point]; !ok || other != value {
			return true
		}
	}

	return false
}

func unionKeys[V any](a, b map[string]V) map[string]struct{} {
	keys := make(map[string]struct{}, len(a)+len(b))
	for key := range a {
		keys[key] = struct{}{}
	}

	for key := range b {
		keys[key] = struct{}{}
	}

	return keys
}

// TraceDiffer compares persisted traces of two runs.
type TraceDiffer struct {
	store adapter.TraceStore
}

// NewTraceDiffer returns a TraceDiffer reading from store.
func NewTraceDiffer(store adapter.TraceStore) *TraceDiffer {
	return &TraceDiffer{store: store}
}

// Compare loads the traces of runA and runB under every mode and reports the
// classes that differ, per mode and over all modes.
func (d *TraceDiffer) Compare(ctx context.Context, modes []m.TraceMode, runA, runB string) (m.TraceComparison, error) {
	comparison := m.TraceComparison{RunA: runA, RunB: runB}
	all := ClassSet{}

	for _, mode := range modes {
		traceA, err := d.store.Load(ctx, mode, runA)
		if err != nil {
			return m.TraceComparison{}, fmt.Errorf("compare %s traces: %w", mode, err)
		}

		traceB, err := d.store.Load(ctx, mode, runB)
		if err != nil {
			return m.TraceComparison{}, fmt.Errorf("compare %s traces: %w", mode, err)
		}

		differing := DiffRecords(traceA, traceB)

		comparison.Passes = append(comparison.Passes, m.TracePass{Mode: mode, Classes: differing.Sorted()})
		all.Union(differing)

		slog.Info("Compared traces", "mode", mode, "runA", runA, "runB", runB, "classes", len(differing))
	}

	comparison.Classes = all.Sorted()

	return comparison, nil
}

// ArchiveComparison summarizes a baseline compared against every archived run.
type ArchiveComparison struct {
	Baseline    string
	Runs        []m.TraceComparison
	Cumulative  []string
	NewlyMarked []string
}

// CompareArchive compares baseline against every other stored run id, adds
// the differing classes to the persisted cumulative set and saves it. With
// reset the previously persisted set is discarded first.
func (d *TraceDiffer) CompareArchive(ctx context.Context, modes []m.TraceMode, baseline string, reset bool) (ArchiveComparison, error) {
	cumulative := ClassSet{}

	if !reset {
		previous, err := d.store.LoadDifferences(ctx)
		if err != nil {
			slog.Error("Failed to load cumulative differences", "error", err)
			return ArchiveComparison{}, fmt.Errorf("load differences: %w", err)
		}

		cumulative.Add(previous...)
	}

	before := len(cumulative)
	known := ClassSet{}
	known.Union(cumulative)

	runs, err := d.archivedRuns(ctx, modes, baseline)
	if err != nil {
		return ArchiveComparison{}, err
	}

	result := ArchiveComparison{Baseline: baseline}

	for _, run := range runs {
		comparison, err := d.Compare(ctx, modes, baseline, run)
		if err != nil {
			return ArchiveComparison{}, err
		}

		result.Runs = append(result.Runs, comparison)
		cumulative.Add(comparison.Classes...)
	}

	if err := d.store.SaveDifferences(ctx, cumulative.Sorted()); err != nil {
		return ArchiveComparison{}, err
	}

	for _, class := range cumulative.Sorted() {
		if !known.Has(class) {
			result.NewlyMarked = append(result.NewlyMarked, class)
		}
	}

	result.Cumulative = cumulative.Sorted()

	slog.Info("Archive comparison finished", "baseline", baseline, "runs", len(runs),
		"previous", before, "cumulative", len(cumulative))

	return result, nil
}

// archivedRuns lists run ids present under every mode, excluding baseline.
func (d *TraceDiffer) archivedRuns(ctx context.Context, modes []m.TraceMode, baseline string) ([]string, error) {
	var common map[string]int

	for _, mode := range modes {
		ids, err := d.store.RunIDs(ctx, mode)
		if err != nil {
			return nil, fmt.Errorf("list archived runs: %w", err)
		}

		if common == nil {
			common = map[string]int{}
		}

		for _, id := range ids {
			common[id]++
		}
	}

	runs := make([]string, 0, len(common))

	for id, count := range common {
		if id != baseline && count == len(modes) {
			runs = append(runs, id)
		}
	}

	sort.Strings(runs)

	return runs, nil
}

// Explain renders a unified diff of the observations of class under test in
// runA and runB for one mode.
func (d *TraceDiffer) Explain(ctx context.Context, mode m.TraceMode, runA, runB, test, class string) (string, error) {
	traceA, err := d.store.Load(ctx, mode, runA)
	if err != nil {
		return "", err
	}

	traceB, err := d.store.Load(ctx, mode, runB)
	if err != nil {
		return "", err
	}

	return ExplainRecords(traceA, traceB, runA, runB, test, class)
}

// ExplainRecords is Explain over records already in memory.
func ExplainRecords(a, b m.TraceRecord, nameA, nameB, test, class string) (string, error) {
	obsA, _ := a.Lookup(test, class)
	obsB, _ := b.Lookup(test, class)

	diff := difflib.UnifiedDiff{
		A:        observationLines(obsA),
		B:        observationLines(obsB),
		FromFile: nameA,
		ToFile:   nameB,
		Context:  2,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("render diff for %s/%s: %w", test, class, err)
	}

	return text, nil
}

func observationLines(obs m.Observations) []string {
	points := make([]int, 0, len(obs))
	for point := range obs {
		points = append(points, point)
	}

	sort.Ints(points)

	lines := make([]string, 0, len(points))
	for _, point := range points {
		lines = append(lines, strconv.Itoa(point)+": "+strconv.FormatInt(obs[point], 10)+"\n")
	}

	return lines
}
