package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	m "gooze.dev/pkg/mutrun/internal/model"
)

// InstanceBackend holds the instances that are currently free. Ownership
// bookkeeping lives in the resource pool; a backend only stores and hands out.
type InstanceBackend interface {
	// TryTake removes and returns a free instance, or ok=false when none is free.
	TryTake(ctx context.Context) (inst m.Instance, ok bool, err error)
	// Put returns an instance to the free set.
	Put(ctx context.Context, inst m.Instance) error
	// Len reports the number of free instances.
	Len(ctx context.Context) (int, error)
}

// SharedInstanceBackend is an InstanceBackend that several dispatchers use at
// once, so an empty free set does not mean it was never filled.
type SharedInstanceBackend interface {
	InstanceBackend
	// SeedOnce stores instances unless the shared set was seeded before. It
	// reports whether this call did the seeding.
	SeedOnce(ctx context.Context, instances ...m.Instance) (bool, error)
}

// MemoryInstanceBackend is a FIFO of free instances kept in process memory.
type MemoryInstanceBackend struct {
	mu   sync.Mutex
	free []m.Instance
}

// NewMemoryInstanceBackend seeds the backend with instances.
func NewMemoryInstanceBackend(instances ...m.Instance) *MemoryInstanceBackend {
	return &MemoryInstanceBackend{free: append([]m.Instance(nil), instances...)}
}

// TryTake implements InstanceBackend.
func (b *MemoryInstanceBackend) TryTake(ctx context.Context) (m.Instance, bool, error) {
	if err := ctx.Err(); err != nil {
		return m.Instance{}, false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.free) == 0 {
		return m.Instance{}, false, nil
	}

	inst := b.free[0]
	b.free = b.free[1:]

	return inst, true, nil
}

// Put implements InstanceBackend.
func (b *MemoryInstanceBackend) Put(_ context.Context, inst m.Instance) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.free = append(b.free, inst)

	return nil
}

// Len implements InstanceBackend.
func (b *MemoryInstanceBackend) Len(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.free), nil
}

// RedisInstanceBackend keeps free instances in a Redis list so that several
// dispatchers (for example one per shard host) can share one set of
// environments.
type RedisInstanceBackend struct {
	client redis.UniversalClient
	key    string
}

// NewRedisInstanceBackend wraps client; free instances are stored under key.
func NewRedisInstanceBackend(client redis.UniversalClient, key string) *RedisInstanceBackend {
	return &RedisInstanceBackend{client: client, key: key}
}

// Seed replaces the free list with instances and marks the list as seeded.
func (b *RedisInstanceBackend) Seed(ctx context.Context, instances ...m.Instance) error {
	ids := make([]any, 0, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.ID)
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		pipe.Set(ctx, b.seededKey(), "1", 0)

		if len(ids) > 0 {
			pipe.RPush(ctx, b.key, ids...)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("seed instances in %s: %w", b.key, err)
	}

	return nil
}

// seedOnceScript fills KEYS[1] with ARGV only if the KEYS[2] marker is absent.
var seedOnceScript = redis.NewScript(`
if redis.call("SETNX", KEYS[2], "1") == 0 then
	return 0
end
redis.call("DEL", KEYS[1])
if #ARGV > 0 then
	redis.call("RPUSH", KEYS[1], unpack(ARGV))
end
return 1
`)

func (b *RedisInstanceBackend) seededKey() string {
	return b.key + ":seeded"
}

// SeedOnce implements SharedInstanceBackend. The marker and the list are
// written in one script, so concurrent dispatchers seed exactly once.
func (b *RedisInstanceBackend) SeedOnce(ctx context.Context, instances ...m.Instance) (bool, error) {
	ids := make([]any, 0, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.ID)
	}

	seeded, err := seedOnceScript.Run(ctx, b.client, []string{b.key, b.seededKey()}, ids...).Int()
	if err != nil {
		return false, fmt.Errorf("seed instances in %s: %w", b.key, err)
	}

	return seeded == 1, nil
}

// TryTake implements InstanceBackend.
func (b *RedisInstanceBackend) TryTake(ctx context.Context) (m.Instance, bool, error) {
	id, err := b.client.LPop(ctx, b.key).Result()
	if errors.Is(err, redis.Nil) {
		return m.Instance{}, false, nil
	}

	if err != nil {
		return m.Instance{}, false, fmt.Errorf("pop instance from %s: %w", b.key, err)
	}

	return m.Instance{ID: id}, true, nil
}

// Put implements InstanceBackend.
func (b *RedisInstanceBackend) Put(ctx context.Context, inst m.Instance) error {
	if err := b.client.RPush(ctx, b.key, inst.ID).Err(); err != nil {
		return fmt.Errorf("push instance %s to %s: %w", inst.ID, b.key, err)
	}

	return nil
}

// Len implements InstanceBackend.
func (b *RedisInstanceBackend) Len(ctx context.Context) (int, error) {
	n, err := b.client.LLen(ctx, b.key).Result()
	if err != nil {
		return 0, fmt.Errorf("length of %s: %w", b.key, err)
	}

	return int(n), nil
}
