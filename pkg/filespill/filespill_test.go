package filespill

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newSpill[T any](t *testing.T) FileSpill[T] {
	t.Helper()

	spill, err := New[T](t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = spill.Remove() })

	return spill
}

func TestFileSpill(t *testing.T) {
	t.Run("New creates the file in the given directory", func(t *testing.T) {
		dir := t.TempDir()

		spill, err := New[int](dir)
		require.NoError(t, err)
		defer spill.Remove()

		require.FileExists(t, spill.Path())
		require.Contains(t, spill.Path(), dir)
	})

	t.Run("Append and Get", func(t *testing.T) {
		spill := newSpill[string](t)

		require.NoError(t, spill.Append("first"))
		require.NoError(t, spill.Append("second"))

		val, err := spill.Get(0)
		require.NoError(t, err)
		require.Equal(t, "first", val)

		val, err = spill.Get(1)
		require.NoError(t, err)
		require.Equal(t, "second", val)

		val, err = spill.Get(3)
		require.Error(t, err)
		require.Equal(t, "", val)
	})

	t.Run("AppendBatch and Len", func(t *testing.T) {
		spill := newSpill[int](t)
		require.Equal(t, uint64(0), spill.Len())

		require.NoError(t, spill.AppendBatch([]int{10, 20, 30, 40, 50}))
		require.Equal(t, uint64(5), spill.Len())

		val, err := spill.Get(4)
		require.NoError(t, err)
		require.Equal(t, 50, val)
	})

	t.Run("Range iterates all items in order", func(t *testing.T) {
		spill := newSpill[int](t)
		expected := []int{100, 200, 300}
		require.NoError(t, spill.AppendBatch(expected))

		var collected []int
		err := spill.Range(func(_ uint64, item int) error {
			collected = append(collected, item)
			return nil
		})

		require.NoError(t, err)
		require.Equal(t, expected, collected)
	})

	t.Run("Range callback error stops iteration", func(t *testing.T) {
		spill := newSpill[int](t)
		require.NoError(t, spill.AppendBatch([]int{1, 2, 3}))

		stop := errors.New("stop at index 1")
		count := 0
		err := spill.Range(func(index uint64, _ int) error {
			count++
			if index == 1 {
				return stop
			}
			return nil
		})

		require.ErrorIs(t, err, stop)
		require.Equal(t, 2, count)
	})

	t.Run("zero-valued fields do not leak between items", func(t *testing.T) {
		type result struct {
			ID       int64
			Detected bool
			Tests    []string
		}

		spill := newSpill[result](t)
		require.NoError(t, spill.Append(result{ID: 1, Detected: true, Tests: []string{"a"}}))
		require.NoError(t, spill.Append(result{ID: 2}))

		second, err := spill.Get(1)
		require.NoError(t, err)
		require.Equal(t, result{ID: 2}, second)
	})

	t.Run("Close keeps data readable and rejects appends", func(t *testing.T) {
		spill := newSpill[int](t)
		require.NoError(t, spill.Append(1))
		require.NoError(t, spill.Close())
		require.NoError(t, spill.Close())

		val, err := spill.Get(0)
		require.NoError(t, err)
		require.Equal(t, 1, val)

		require.Error(t, spill.Append(2))
	})

	t.Run("Remove deletes the file", func(t *testing.T) {
		spill, err := New[int](t.TempDir())
		require.NoError(t, err)

		require.NoError(t, spill.Remove())

		_, err = os.Stat(spill.Path())
		require.True(t, os.IsNotExist(err))
	})
}

func TestEdgeCases(t *testing.T) {
	t.Run("empty spill range returns no items", func(t *testing.T) {
		spill := newSpill[int](t)

		count := 0
		err := spill.Range(func(uint64, int) error {
			count++
			return nil
		})

		require.NoError(t, err)
		require.Equal(t, 0, count)
	})

	t.Run("get on empty spill returns error", func(t *testing.T) {
		spill := newSpill[int](t)

		_, err := spill.Get(0)
		require.Error(t, err)
	})
}

func BenchmarkAppend(b *testing.B) {
	spill, err := New[int](b.TempDir())
	if err != nil {
		b.Fatalf("failed to create spill: %v", err)
	}
	defer spill.Remove()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = spill.Append(i)
	}
}

func BenchmarkRange(b *testing.B) {
	spill, err := New[int](b.TempDir())
	if err != nil {
		b.Fatalf("failed to create spill: %v", err)
	}
	defer spill.Remove()

	for i := 0; i < 1000; i++ {
		_ = spill.Append(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = spill.Range(func(uint64, int) error { return nil })
	}
}
