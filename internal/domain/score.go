package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"gooze.dev/pkg/mutrun/internal/adapter"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// ErrCatalogIntegrity aborts aggregation when the catalog yields an entry that
// cannot be fetched.
var ErrCatalogIntegrity = errors.New("catalog integrity violation")

type scoreGroup struct {
	name    string
	class   string
	killed  int
	covered int
	total   int
	tests   map[string]struct{}
}

func (g *scoreGroup) add(mutation m.Mutation) {
	g.total++

	result := mutation.Result
	if result == nil {
		return
	}

	if result.Touched {
		g.covered++

		if result.Detected {
			g.killed++
		}
	} else if result.Detected {
		slog.Warn("Result reports detection without reaching the mutation, not counted as killed",
			"mutation", mutation.String())
	}

	for _, name := range result.TestNames() {
		g.tests[name] = struct{}{}
	}
}

func (g *scoreGroup) entry() m.ScoreEntry {
	tests := make([]string, 0, len(g.tests))
	for name := range g.tests {
		tests = append(tests, name)
	}

	sort.Strings(tests)

	return m.ScoreEntry{
		Name:    g.name,
		Class:   g.class,
		Killed:  g.killed,
		Covered: g.covered,
		Total:   g.total,
		Tests:   tests,
	}
}

// ScoreAggregator accumulates per-class and per-method counts. It is not safe
// for concurrent use; results are aggregated in one pass after collection.
type ScoreAggregator struct {
	classes map[string]*scoreGroup
	methods map[string]*scoreGroup
}

// NewScoreAggregator returns an empty aggregator.
func NewScoreAggregator() *ScoreAggregator {
	return &ScoreAggregator{
		classes: map[string]*scoreGroup{},
		methods: map[string]*scoreGroup{},
	}
}

// Add counts mutation in its class and method groups.
func (a *ScoreAggregator) Add(mutation m.Mutation) {
	class := mutation.Descriptor.Class
	method := mutation.Descriptor.QualifiedMethod()

	a.group(a.classes, class, class, class).add(mutation)
	a.group(a.methods, method, mutation.Descriptor.Method, class).add(mutation)
}

func (a *ScoreAggregator) group(groups map[string]*scoreGroup, key, name, class string) *scoreGroup {
	g, ok := groups[key]
	if !ok {
		g = &scoreGroup{name: name, class: class, tests: map[string]struct{}{}}
		groups[key] = g
	}

	return g
}

// Table returns the aggregated entries, classes sorted by name and methods by
// class then method.
func (a *ScoreAggregator) Table() m.ScoreTable {
	return m.ScoreTable{
		Classes: entries(a.classes),
		Methods: entries(a.methods),
	}
}

func entries(groups map[string]*scoreGroup) []m.ScoreEntry {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	out := make([]m.ScoreEntry, 0, len(keys))
	for _, key := range keys {
		out = append(out, groups[key].entry())
	}

	return out
}

// AggregateMutations scores mutations that already carry their results.
func AggregateMutations(mutations []m.Mutation) m.ScoreTable {
	aggregator := NewScoreAggregator()
	for _, mutation := range mutations {
		aggregator.Add(mutation)
	}

	return aggregator.Table()
}

// Aggregate walks the whole catalog of store, overlays results held by
// collector (which may be nil) and scores every mutation. An unfetchable
// catalog entry aborts with ErrCatalogIntegrity.
func Aggregate(ctx context.Context, store adapter.MutationStore, collector *ResultCollector) (m.ScoreTable, error) {
	aggregator := NewScoreAggregator()
	count := 0

	err := store.Catalog(ctx, func(mutation *m.Mutation) error {
		if mutation == nil {
			slog.Error("Catalog entry could not be fetched", "position", count)
			return fmt.Errorf("%w: entry %d could not be fetched", ErrCatalogIntegrity, count)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		collector.Apply(mutation)
		aggregator.Add(*mutation)
		count++

		return nil
	})
	if err != nil {
		return m.ScoreTable{}, fmt.Errorf("aggregate scores: %w", err)
	}

	table := aggregator.Table()
	slog.Info("Aggregated scores", "mutations", count, "classes", len(table.Classes), "methods", len(table.Methods))

	return table, nil
}
