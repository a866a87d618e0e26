package adapter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	m "gooze.dev/pkg/mutrun/internal/model"
)

const (
	// ClassScoresFile is the class-level score artifact name.
	ClassScoresFile = "class-scores.csv"
	// MethodScoresFile is the method-level score artifact name.
	MethodScoresFile = "method-scores.csv"
	// SummaryFile is the optional condensed text summary.
	SummaryFile = "summary.txt"
)

var scoreColumns = []string{
	"KILLED_MUTANTS",
	"COVERED_MUTANTS",
	"GENERATED_MUTANTS",
	"MUTATION_SCORE_OF_COVERED_MUTANTS",
	"MUTATION_SCORE_OF_GENERATED_MUTANTS",
	"TESTS_TOUCHED",
}

// ScoreReportStore writes score artifacts to a reports directory.
type ScoreReportStore interface {
	SaveScores(dir m.Path, table m.ScoreTable) error
	SaveSummary(dir m.Path, summary string) error
}

// CSVScoreReportStore writes the class and method tables as CSV files.
type CSVScoreReportStore struct{}

// NewCSVScoreReportStore constructs a CSVScoreReportStore.
func NewCSVScoreReportStore() *CSVScoreReportStore {
	return &CSVScoreReportStore{}
}

// SaveScores implements ScoreReportStore.
func (s *CSVScoreReportStore) SaveScores(dir m.Path, table m.ScoreTable) error {
	classHeader := append([]string{"CLASS_NAME"}, scoreColumns...)
	if err := s.writeTable(filepath.Join(string(dir), ClassScoresFile), classHeader, table.Classes, false); err != nil {
		return err
	}

	methodHeader := append([]string{"CLASS_NAME", "METHOD_NAME"}, scoreColumns...)

	return s.writeTable(filepath.Join(string(dir), MethodScoresFile), methodHeader, table.Methods, true)
}

// SaveSummary implements ScoreReportStore.
func (s *CSVScoreReportStore) SaveSummary(dir m.Path, summary string) error {
	path := filepath.Join(string(dir), SummaryFile)
	if err := writeFileAtomic(path, []byte(summary)); err != nil {
		slog.Error("Failed to write summary", "path", path, "error", err)
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}

func (s *CSVScoreReportStore) writeTable(path string, header []string, entries []m.ScoreEntry, withClass bool) error {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, entry := range entries {
		record := make([]string, 0, len(header))
		if withClass {
			record = append(record, entry.Class)
		}

		record = append(record,
			entry.Name,
			strconv.Itoa(entry.Killed),
			strconv.Itoa(entry.Covered),
			strconv.Itoa(entry.Total),
			strconv.FormatFloat(entry.ScoreOfCovered(), 'f', -1, 64),
			strconv.FormatFloat(entry.ScoreOfGenerated(), 'f', -1, 64),
			strings.Join(entry.Tests, " "),
		)

		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", entry.Name, err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		slog.Error("Failed to write score file", "path", path, "error", err)
		return fmt.Errorf("write score file %s: %w", path, err)
	}

	return nil
}
