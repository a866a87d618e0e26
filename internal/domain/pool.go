package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gooze.dev/pkg/mutrun/internal/adapter"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// DefaultPollInterval is how often Acquire re-checks for a free instance.
const DefaultPollInterval = 100 * time.Millisecond

const releaseTimeout = 5 * time.Second

// ErrNotCheckedOut is returned when releasing an instance the pool did not hand out.
var ErrNotCheckedOut = errors.New("instance is not checked out")

// ResourcePool is the bounded set of reusable execution environments shared
// by all supervisors. Every Acquire must be matched by exactly one Release.
type ResourcePool struct {
	mu           sync.Mutex
	backend      adapter.InstanceBackend
	capacity     int
	pollInterval time.Duration
	inUse        map[string]struct{}
}

// PoolOption configures a ResourcePool.
type PoolOption func(*ResourcePool)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(interval time.Duration) PoolOption {
	return func(p *ResourcePool) {
		if interval > 0 {
			p.pollInterval = interval
		}
	}
}

// NewResourcePool creates a pool holding instances in process memory.
func NewResourcePool(instances []m.Instance, options ...PoolOption) *ResourcePool {
	return NewResourcePoolWithBackend(adapter.NewMemoryInstanceBackend(instances...), len(instances), options...)
}

// NewResourcePoolWithBackend creates a pool over an already seeded backend.
func NewResourcePoolWithBackend(backend adapter.InstanceBackend, capacity int, options ...PoolOption) *ResourcePool {
	pool := &ResourcePool{
		backend:      backend,
		capacity:     capacity,
		pollInterval: DefaultPollInterval,
		inUse:        make(map[string]struct{}, capacity),
	}

	for _, option := range options {
		option(pool)
	}

	return pool
}

// Acquire blocks until an instance is free, polling at the configured
// interval, and hands it to the caller. It returns ctx.Err() when ctx ends first.
func (p *ResourcePool) Acquire(ctx context.Context) (m.Instance, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		inst, ok, err := p.tryAcquire(ctx)
		if err != nil {
			return m.Instance{}, err
		}

		if ok {
			slog.Debug("Acquired instance", "instance", inst.ID)
			return inst, nil
		}

		select {
		case <-ctx.Done():
			return m.Instance{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *ResourcePool) tryAcquire(ctx context.Context) (m.Instance, bool, error) {
	if err := ctx.Err(); err != nil {
		return m.Instance{}, false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok, err := p.backend.TryTake(ctx)
	if err != nil {
		slog.Error("Failed to take instance from backend", "error", err)
		return m.Instance{}, false, fmt.Errorf("acquire instance: %w", err)
	}

	if !ok {
		return m.Instance{}, false, nil
	}

	if _, owned := p.inUse[inst.ID]; owned {
		// A shared backend handed out an instance this process already owns.
		_ = p.backend.Put(ctx, inst)
		return m.Instance{}, false, fmt.Errorf("acquire instance: %s is already checked out", inst.ID)
	}

	p.inUse[inst.ID] = struct{}{}

	return inst, true, nil
}

// Release returns inst to the pool. On error the instance is still counted as
// checked out.
func (p *ResourcePool) Release(inst m.Instance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, owned := p.inUse[inst.ID]; !owned {
		slog.Warn("Release of instance that is not checked out", "instance", inst.ID)
		return fmt.Errorf("release %s: %w", inst.ID, ErrNotCheckedOut)
	}

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	// The instance stays checked out until the backend has it back, so a
	// failed release can be retried.
	if err := p.backend.Put(ctx, inst); err != nil {
		slog.Error("Failed to return instance to backend", "instance", inst.ID, "error", err)
		return fmt.Errorf("release %s: %w", inst.ID, err)
	}

	delete(p.inUse, inst.ID)

	slog.Debug("Released instance", "instance", inst.ID)

	return nil
}

// Capacity is the number of instances the pool was created with.
func (p *ResourcePool) Capacity() int {
	return p.capacity
}

// InUse is the number of instances currently checked out by this process.
func (p *ResourcePool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.inUse)
}

// Available is the number of instances free in the backend.
func (p *ResourcePool) Available(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.backend.Len(ctx)
}
