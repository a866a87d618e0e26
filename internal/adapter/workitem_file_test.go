package adapter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/mutrun/internal/model"
)

func TestReadIDList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work-items.txt")
	require.NoError(t, os.WriteFile(path, []byte("# rerun after fix\n12\n\n  7  \n3\n"), 0o600))

	ids, err := ReadIDList(m.Path(path))
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 7, 3}, ids)
}

func TestReadIDList_InvalidLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work-items.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\nabc\n"), 0o600))

	_, err := ReadIDList(m.Path(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")
}

func TestReadIDList_Missing(t *testing.T) {
	_, err := ReadIDList(m.Path(filepath.Join(t.TempDir(), "absent.txt")))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteIDList(t *testing.T) {
	path := m.Path(filepath.Join(t.TempDir(), "nested", "ids.txt"))

	require.NoError(t, WriteIDList(path, []int64{5, 1, 5}))

	ids, err := ReadIDList(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 1, 5}, ids)
}
