package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	m "gooze.dev/pkg/mutrun/internal/model"
)

// ErrMutationNotFound is returned when a requested mutation id is unknown to the store.
var ErrMutationNotFound = errors.New("mutation not found")

// MutationStore is the persistence boundary for mutation metadata and results.
// Generation of mutations happens elsewhere; the store only hands out what was
// generated and records what was executed.
type MutationStore interface {
	// PendingMutations returns mutations without a recorded result in arrival
	// order. A limit <= 0 means no limit.
	PendingMutations(ctx context.Context, limit int) ([]m.Mutation, error)

	// MutationsByID resolves the given ids in the given order, regardless of status.
	MutationsByID(ctx context.Context, ids []int64) ([]m.Mutation, error)

	// Catalog calls fn for every mutation in the store with its result attached.
	// A nil mutation signals an entry that is listed but could not be fetched.
	Catalog(ctx context.Context, fn func(mutation *m.Mutation) error) error

	// SaveResult records the result of a mutation run.
	SaveResult(ctx context.Context, result m.ExecutionResult) error
}

type catalogFile struct {
	Mutations []catalogEntry `yaml:"mutations"`
}

type catalogEntry struct {
	ID           int64 `yaml:"id"`
	m.Descriptor `yaml:",inline"`
	Result       *m.ExecutionResult `yaml:"result,omitempty"`
}

// YAMLMutationStore keeps the catalog in a single YAML file. It is meant for
// local runs and fixtures where no database is available.
type YAMLMutationStore struct {
	path    string
	mu      sync.Mutex
	entries []catalogEntry
	index   map[int64]int
}

// NewYAMLMutationStore loads the catalog at path. A missing file yields an empty store.
func NewYAMLMutationStore(path m.Path) (*YAMLMutationStore, error) {
	store := &YAMLMutationStore{path: string(path), index: map[int64]int{}}

	data, err := os.ReadFile(string(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Catalog file does not exist, starting empty", "path", path)
			return store, nil
		}

		slog.Error("Failed to read catalog", "path", path, "error", err)

		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Error("Failed to parse catalog", "path", path, "error", err)
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	for i, entry := range file.Mutations {
		if _, dup := store.index[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate mutation id %d in %s", entry.ID, path)
		}

		store.index[entry.ID] = i
	}

	store.entries = file.Mutations

	return store, nil
}

// Add appends mutations to the catalog and persists it.
func (s *YAMLMutationStore) Add(mutations ...m.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mutation := range mutations {
		if _, dup := s.index[mutation.ID]; dup {
			return fmt.Errorf("duplicate mutation id %d", mutation.ID)
		}

		s.index[mutation.ID] = len(s.entries)
		s.entries = append(s.entries, catalogEntry{
			ID:         mutation.ID,
			Descriptor: mutation.Descriptor,
			Result:     mutation.Result,
		})
	}

	return s.flush()
}

// PendingMutations implements MutationStore.
func (s *YAMLMutationStore) PendingMutations(ctx context.Context, limit int) ([]m.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []m.Mutation

	for _, entry := range s.entries {
		if entry.Result != nil {
			continue
		}

		pending = append(pending, entry.toMutation())
		if limit > 0 && len(pending) >= limit {
			break
		}
	}

	return pending, nil
}

// MutationsByID implements MutationStore.
func (s *YAMLMutationStore) MutationsByID(ctx context.Context, ids []int64) ([]m.Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mutations := make([]m.Mutation, 0, len(ids))

	for _, id := range ids {
		i, ok := s.index[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrMutationNotFound, id)
		}

		mutations = append(mutations, s.entries[i].toMutation())
	}

	return mutations, nil
}

// Catalog implements MutationStore.
func (s *YAMLMutationStore) Catalog(ctx context.Context, fn func(mutation *m.Mutation) error) error {
	s.mu.Lock()
	snapshot := make([]catalogEntry, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	for _, entry := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}

		mutation := entry.toMutation()
		if err := fn(&mutation); err != nil {
			return err
		}
	}

	return nil
}

// SaveResult implements MutationStore.
func (s *YAMLMutationStore) SaveResult(ctx context.Context, result m.ExecutionResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[result.MutationID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrMutationNotFound, result.MutationID)
	}

	stored := result
	s.entries[i].Result = &stored

	return s.flush()
}

func (s *YAMLMutationStore) flush() error {
	data, err := yaml.Marshal(catalogFile{Mutations: s.entries})
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		slog.Error("Failed to write catalog", "path", s.path, "error", err)
		return fmt.Errorf("write catalog %s: %w", s.path, err)
	}

	return nil
}

func (e catalogEntry) toMutation() m.Mutation {
	status := m.StatusPending
	if e.Result != nil {
		status = m.StatusDone
	}

	return m.Mutation{
		ID:         e.ID,
		Descriptor: e.Descriptor,
		Status:     status,
		Result:     e.Result,
	}
}
