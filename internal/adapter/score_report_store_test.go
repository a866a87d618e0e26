package adapter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/mutrun/internal/model"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)

	defer func() { _ = file.Close() }()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	return records
}

func TestCSVScoreReportStore_SaveScores(t *testing.T) {
	dir := t.TempDir()
	table := m.ScoreTable{
		Classes: []m.ScoreEntry{{Name: "Foo", Class: "Foo", Killed: 2, Covered: 2, Total: 3, Tests: []string{"t1", "t2"}}},
		Methods: []m.ScoreEntry{
			{Name: "bar", Class: "Foo", Killed: 2, Covered: 2, Total: 2, Tests: []string{"t1", "t2"}},
			{Name: "baz, qux", Class: "Foo", Total: 1},
		},
	}

	require.NoError(t, NewCSVScoreReportStore().SaveScores(m.Path(dir), table))

	classes := readCSV(t, filepath.Join(dir, ClassScoresFile))
	require.Len(t, classes, 2)
	assert.Equal(t, "CLASS_NAME", classes[0][0])
	assert.Equal(t, []string{"Foo", "2", "2", "3", "1", "0.6666666666666666", "t1 t2"}, classes[1])

	methods := readCSV(t, filepath.Join(dir, MethodScoresFile))
	require.Len(t, methods, 3)
	assert.Equal(t, []string{"CLASS_NAME", "METHOD_NAME"}, methods[0][:2])
	assert.Equal(t, []string{"Foo", "bar", "2", "2", "2", "1", "1", "t1 t2"}, methods[1])
	assert.Equal(t, []string{"Foo", "baz, qux", "0", "0", "1", "0", "0", ""}, methods[2])
}

func TestCSVScoreReportStore_SaveSummary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	require.NoError(t, NewCSVScoreReportStore().SaveSummary(m.Path(dir), "Mutation score: 50%\n"))

	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	assert.Equal(t, "Mutation score: 50%\n", string(data))
}
