package cmd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/mutrun/internal/adapter"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// sharedBackend stands in for a list several dispatcher hosts share.
type sharedBackend struct {
	*adapter.MemoryInstanceBackend
	mu      sync.Mutex
	seeded  bool
	seedErr error
}

func newSharedBackend() *sharedBackend {
	return &sharedBackend{MemoryInstanceBackend: adapter.NewMemoryInstanceBackend()}
}

func (b *sharedBackend) SeedOnce(ctx context.Context, instances ...m.Instance) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seedErr != nil {
		return false, b.seedErr
	}

	if b.seeded {
		return false, nil
	}

	b.seeded = true

	for _, inst := range instances {
		if err := b.Put(ctx, inst); err != nil {
			return false, err
		}
	}

	return true, nil
}

func TestOpenSharedPool_SecondHostDoesNotReseedDrainedList(t *testing.T) {
	ctx := context.Background()
	backend := newSharedBackend()
	instances := []m.Instance{{ID: "a"}, {ID: "b"}}

	hostA, err := openSharedPool(ctx, backend, instances, time.Millisecond)
	require.NoError(t, err)

	first, err := hostA.Acquire(ctx)
	require.NoError(t, err)
	second, err := hostA.Acquire(ctx)
	require.NoError(t, err)

	hostB, err := openSharedPool(ctx, backend, instances, time.Millisecond)
	require.NoError(t, err)

	free, err := hostB.Available(ctx)
	require.NoError(t, err)
	assert.Zero(t, free, "host B must wait for host A's instances")

	require.NoError(t, hostA.Release(first))
	require.NoError(t, hostA.Release(second))

	free, err = hostB.Available(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(instances), free)
}

func TestOpenSharedPool_SeedError(t *testing.T) {
	backend := newSharedBackend()
	backend.seedErr = errors.New("NOSCRIPT")

	_, err := openSharedPool(context.Background(), backend, []m.Instance{{ID: "a"}}, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed shared instance pool")
}
