package domain

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

type flakyBackend struct {
	*adapter.MemoryInstanceBackend
	putErr error
}

func (b *flakyBackend) Put(ctx context.Context, inst m.Instance) error {
	if b.putErr != nil {
		return b.putErr
	}

	return b.MemoryInstanceBackend.Put(ctx, inst)
}

func testPool(ids ...string) *ResourcePool {
	instances := make([]m.Instance, 0, len(ids))
	for _, id := range ids {
		instances = append(instances, m.Instance{ID: id})
	}

	return NewResourcePool(instances, WithPollInterval(5*time.Millisecond))
}

func TestResourcePool_SecondAcquireWaitsForRelease(t *testing.T) {
	pool := testPool("only")
	ctx := context.Background()

	first, err := pool.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan m.Instance, 1)

	go func() {
		inst, err := pool.Acquire(ctx)
		if err == nil {
			acquired <- inst
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the only instance was checked out")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, pool.Release(first))

	select {
	case inst := <-acquired:
		assert.Equal(t, "only", inst.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire did not succeed after release")
	}
}

func TestResourcePool_AcquireHonorsContext(t *testing.T) {
	pool := testPool("only")

	_, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = pool.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestResourcePool_ReleaseUnknownInstance(t *testing.T) {
	pool := testPool("a")

	err := pool.Release(m.Instance{ID: "a"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotCheckedOut))

	inst, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, pool.Release(inst))

	err = pool.Release(inst)
	assert.True(t, errors.Is(err, ErrNotCheckedOut), "double release must be rejected")
}

func TestResourcePool_BalanceUnderContention(t *testing.T) {
	pool := testPool("a", "b", "c")
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holding = map[string]bool{}
		maxHeld int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			inst, err := pool.Acquire(ctx)
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			assert.False(t, holding[inst.ID], "instance %s handed out twice", inst.ID)
			holding[inst.ID] = true
			if len(holding) > maxHeld {
				maxHeld = len(holding)
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			delete(holding, inst.ID)
			mu.Unlock()

			assert.NoError(t, pool.Release(inst))
		}()
	}

	wg.Wait()

	assert.LessOrEqual(t, maxHeld, 3)
	assert.Zero(t, pool.InUse())

	available, err := pool.Available(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, available)
	assert.Equal(t, 3, pool.Capacity())
}

func TestResourcePool_FailedReleaseCanBeRetried(t *testing.T) {
	backend := &flakyBackend{MemoryInstanceBackend: adapter.NewMemoryInstanceBackend(m.Instance{ID: "a"})}
	pool := NewResourcePoolWithBackend(backend, 1, WithPollInterval(5*time.Millisecond))
	ctx := context.Background()

	inst, err := pool.Acquire(ctx)
	require.NoError(t, err)

	backend.putErr = errors.New("connection reset")

	require.Error(t, pool.Release(inst))
	assert.Equal(t, 1, pool.InUse(), "instance stays checked out until the backend has it")

	backend.putErr = nil

	require.NoError(t, pool.Release(inst))
	assert.Zero(t, pool.InUse())

	available, err := pool.Available(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, available)
}
