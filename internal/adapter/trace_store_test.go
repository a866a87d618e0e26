package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/mutrun/internal/model"
)

func TestFileTraceStore_SaveLoad(t *testing.T) {
	store := NewFileTraceStore(m.Path(t.TempDir()))
	ctx := context.Background()

	record := m.TraceRecord{"t1": {"C": {1: 3, 2: -1}}, "t2": {"D": {}}}
	require.NoError(t, store.Save(ctx, m.TraceControl, "run-a", record))

	loaded, err := store.Load(ctx, m.TraceControl, "run-a")
	require.NoError(t, err)

	obs, ok := loaded.Lookup("t1", "C")
	require.True(t, ok)
	assert.Equal(t, m.Observations{1: 3, 2: -1}, obs)

	_, ok = loaded.Lookup("t2", "C")
	assert.False(t, ok)

	_, err = store.Load(ctx, m.TraceData, "run-a")
	require.Error(t, err, "modes are stored separately")
}

func TestFileTraceStore_RunIDs(t *testing.T) {
	dir := t.TempDir()
	store := NewFileTraceStore(m.Path(dir))
	ctx := context.Background()

	ids, err := store.RunIDs(ctx, m.TraceData)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, run := range []string{"b", "a", "c"} {
		require.NoError(t, store.Save(ctx, m.TraceData, run, m.TraceRecord{}))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, string(m.TraceData), "notes.txt"), []byte("x"), 0o600))

	ids, err = store.RunIDs(ctx, m.TraceData)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestFileTraceStore_Differences(t *testing.T) {
	store := NewFileTraceStore(m.Path(t.TempDir()))
	ctx := context.Background()

	classes, err := store.LoadDifferences(ctx)
	require.NoError(t, err)
	assert.Empty(t, classes)

	require.NoError(t, store.SaveDifferences(ctx, []string{"Z", "A"}))

	classes, err = store.LoadDifferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "Z"}, classes)
}
