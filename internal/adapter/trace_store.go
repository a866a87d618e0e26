package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	m "gooze.dev/pkg/mutrun/internal/model"
)

const (
	traceFileExt        = ".yaml"
	differencesFileName = "differences.yaml"
)

// TraceStore persists execution traces per run identifier and the cumulative
// set of classes that differed across archived comparisons.
type TraceStore interface {
	Load(ctx context.Context, mode m.TraceMode, runID string) (m.TraceRecord, error)
	Save(ctx context.Context, mode m.TraceMode, runID string, record m.TraceRecord) error
	RunIDs(ctx context.Context, mode m.TraceMode) ([]string, error)
	LoadDifferences(ctx context.Context) ([]string, error)
	SaveDifferences(ctx context.Context, classes []string) error
}

// FileTraceStore lays traces out as <dir>/<mode>/<runID>.yaml.
type FileTraceStore struct {
	dir string
}

// NewFileTraceStore returns a FileTraceStore rooted at dir.
func NewFileTraceStore(dir m.Path) *FileTraceStore {
	return &FileTraceStore{dir: string(dir)}
}

// Load implements TraceStore.
func (s *FileTraceStore) Load(ctx context.Context, mode m.TraceMode, runID string) (m.TraceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.tracePath(mode, runID)

	// #nosec G304 - trace paths are derived from the configured trace dir
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read trace", "path", path, "error", err)
		return nil, fmt.Errorf("read %s trace %q: %w", mode, runID, err)
	}

	record := m.TraceRecord{}
	if err := yaml.Unmarshal(data, &record); err != nil {
		slog.Error("Failed to parse trace", "path", path, "error", err)
		return nil, fmt.Errorf("parse %s trace %q: %w", mode, runID, err)
	}

	return record, nil
}

// Save implements TraceStore.
func (s *FileTraceStore) Save(ctx context.Context, mode m.TraceMode, runID string, record m.TraceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	return writeFileAtomic(s.tracePath(mode, runID), data)
}

// RunIDs implements TraceStore. Ids are returned sorted.
func (s *FileTraceStore) RunIDs(ctx context.Context, mode m.TraceMode) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.dir, string(mode)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list %s traces: %w", mode, err)
	}

	var ids []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, traceFileExt) || strings.HasPrefix(name, ".") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, traceFileExt))
	}

	sort.Strings(ids)

	return ids, nil
}

// LoadDifferences implements TraceStore. A missing file is an empty set.
func (s *FileTraceStore) LoadDifferences(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// #nosec G304 - derived from the configured trace dir
	data, err := os.ReadFile(filepath.Join(s.dir, differencesFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read differences: %w", err)
	}

	var classes []string
	if err := yaml.Unmarshal(data, &classes); err != nil {
		return nil, fmt.Errorf("parse differences: %w", err)
	}

	return classes, nil
}

// SaveDifferences implements TraceStore.
func (s *FileTraceStore) SaveDifferences(ctx context.Context, classes []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sorted := append([]string(nil), classes...)
	sort.Strings(sorted)

	data, err := yaml.Marshal(sorted)
	if err != nil {
		return fmt.Errorf("marshal differences: %w", err)
	}

	path := filepath.Join(s.dir, differencesFileName)
	if err := writeFileAtomic(path, data); err != nil {
		slog.Error("Failed to write differences", "path", path, "error", err)
		return fmt.Errorf("write differences: %w", err)
	}

	return nil
}

func (s *FileTraceStore) tracePath(mode m.TraceMode, runID string) string {
	return filepath.Join(s.dir, string(mode), runID+traceFileExt)
}
