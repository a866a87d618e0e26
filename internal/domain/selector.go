package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"gooze.dev/pkg/mutrun/internal/adapter"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// SelectorOptions configures how a Selector builds its batch.
type SelectorOptions struct {
	// MaxCount caps automatic selection; <= 0 means no cap.
	MaxCount int
	// OverrideFile, when set and present, lists the exact mutation ids to run.
	OverrideFile m.Path
}

// Selector is the source of the pending work set for one run. It is built
// once at startup and shared by reference; the batch is built lazily on first
// use and is read-only afterwards.
type Selector struct {
	store   adapter.MutationStore
	options SelectorOptions

	buildMu sync.Mutex
	current atomic.Pointer[batch]
}

type batch struct {
	mutations   []m.Mutation
	descriptors map[m.Descriptor]struct{}

	appliedMu sync.Mutex
	applied   map[m.Descriptor]struct{}
}

// NewSelector returns a Selector backed by store.
func NewSelector(store adapter.MutationStore, options SelectorOptions) *Selector {
	return &Selector{store: store, options: options}
}

// SelectBatch resolves a batch without caching it. With an override file the
// listed mutations are returned in file order regardless of their status;
// otherwise up to maxCount pending mutations are returned in arrival order.
func (s *Selector) SelectBatch(ctx context.Context, maxCount int) ([]m.Mutation, error) {
	if s.options.OverrideFile != "" {
		ids, err := adapter.ReadIDList(s.options.OverrideFile)

		switch {
		case err == nil:
			slog.Info("Selecting mutations from work-item file", "path", s.options.OverrideFile, "count", len(ids))

			mutations, err := s.store.MutationsByID(ctx, ids)
			if err != nil {
				slog.Error("Failed to resolve work items", "path", s.options.OverrideFile, "error", err)
				return nil, fmt.Errorf("resolve work items: %w", err)
			}

			return mutations, nil
		case errors.Is(err, os.ErrNotExist):
			slog.Info("Work-item file does not exist, selecting pending mutations", "path", s.options.OverrideFile)
		default:
			return nil, err
		}
	}

	mutations, err := s.store.PendingMutations(ctx, maxCount)
	if err != nil {
		return nil, fmt.Errorf("select pending mutations: %w", err)
	}

	return mutations, nil
}

// Batch returns the cached batch, building it on first use.
func (s *Selector) Batch(ctx context.Context) ([]m.Mutation, error) {
	if current := s.current.Load(); current != nil {
		return current.mutations, nil
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	if current := s.current.Load(); current != nil {
		return current.mutations, nil
	}

	built, err := s.build(ctx)
	if err != nil {
		return nil, err
	}

	s.current.Store(built)

	return built.mutations, nil
}

// Reinit rebuilds the batch and replaces the cached one. Slices handed out
// before keep their contents.
func (s *Selector) Reinit(ctx context.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	built, err := s.build(ctx)
	if err != nil {
		return err
	}

	s.current.Store(built)
	slog.Info("Selector reinitialized", "mutations", len(built.mutations))

	return nil
}

func (s *Selector) build(ctx context.Context) (*batch, error) {
	mutations, err := s.SelectBatch(ctx, s.options.MaxCount)
	if err != nil {
		return nil, err
	}

	b := &batch{
		mutations:   mutations,
		descriptors: make(map[m.Descriptor]struct{}, len(mutations)),
		applied:     map[m.Descriptor]struct{}{},
	}

	for _, mutation := range mutations {
		b.descriptors[mutation.Descriptor] = struct{}{}
		slog.Debug("Selected mutation", "mutation", mutation.String())
	}

	slog.Info("Selected mutations for run", "count", len(mutations))

	return b, nil
}

// ContainsDescriptor reports whether the batch holds a mutation with the same
// descriptor as mutation, ignoring storage ids.
func (s *Selector) ContainsDescriptor(mutation m.Mutation) bool {
	current := s.current.Load()
	if current == nil {
		return false
	}

	_, ok := current.descriptors[mutation.Descriptor]
	if ok {
		slog.Debug("Mutation contained in batch", "mutation", mutation.String())
	} else {
		slog.Debug("Mutation not contained in batch", "mutation", mutation.String())
	}

	return ok
}

// ClassNames returns the distinct classes touched by the batch, sorted.
func (s *Selector) ClassNames() []string {
	current := s.current.Load()
	if current == nil {
		return nil
	}

	seen := map[string]struct{}{}
	for _, mutation := range current.mutations {
		seen[mutation.Descriptor.Class] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// MarkApplied records that mutation was exercised. It returns false when the
// mutation does not belong to the batch.
func (s *Selector) MarkApplied(mutation m.Mutation) bool {
	current := s.current.Load()
	if current == nil || !s.ContainsDescriptor(mutation) {
		return false
	}

	current.appliedMu.Lock()
	current.applied[mutation.Descriptor] = struct{}{}
	current.appliedMu.Unlock()

	return true
}

// Unapplied returns the batch mutations that were never marked applied, in batch order.
func (s *Selector) Unapplied() []m.Mutation {
	current := s.current.Load()
	if current == nil {
		return nil
	}

	current.appliedMu.Lock()
	defer current.appliedMu.Unlock()

	var missing []m.Mutation

	for _, mutation := range current.mutations {
		if _, ok := current.applied[mutation.Descriptor]; !ok {
			missing = append(missing, mutation)
		}
	}

	if len(missing) > 0 {
		slog.Warn("Not all selected mutations were exercised", "applied", len(current.mutations)-len(missing), "selected", len(current.mutations))
	}

	return missing
}
