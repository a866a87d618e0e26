package domain

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"

	"gooze.dev/pkg/mutrun/internal/adapter"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// ImportSummary counts what ImportResults did with the artifacts it found.
type ImportSummary struct {
	Found    int
	Imported int
	// Skipped lists artifacts that could not be read or whose mutation is
	// unknown to the store.
	Skipped []m.Path
}

// ImportResults walks roots for result artifacts left in kept task
// directories and records them in the store. Unreadable or unknown artifacts
// are skipped and reported; only walk and store failures abort the import.
func ImportResults(ctx context.Context, store adapter.MutationStore, roots ...m.Path) (ImportSummary, error) {
	var (
		summary ImportSummary
		paths   []string
	)

	for _, root := range roots {
		err := filepath.WalkDir(string(root), func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if !entry.IsDir() && entry.Name() == ResultFileName {
				paths = append(paths, path)
			}

			return ctx.Err()
		})
		if err != nil {
			slog.Error("Failed to scan for result artifacts", "root", root, "error", err)
			return summary, fmt.Errorf("scan %s: %w", root, err)
		}
	}

	sort.Strings(paths)
	summary.Found = len(paths)

	var skipped *multierror.Error

	for _, path := range paths {
		result, err := adapter.ReadResultArtifact(m.Path(path))
		if err == nil {
			err = store.SaveResult(ctx, *result)
		}

		switch {
		case err == nil:
			summary.Imported++
		case errors.Is(err, adapter.ErrMutationNotFound), result == nil:
			summary.Skipped = append(summary.Skipped, m.Path(path))
			skipped = multierror.Append(skipped, fmt.Errorf("%s: %w", path, err))
		default:
			slog.Error("Failed to record imported result", "path", path, "error", err)
			return summary, fmt.Errorf("record %s: %w", path, err)
		}
	}

	if err := skipped.ErrorOrNil(); err != nil {
		slog.Warn("Skipped result artifacts", "count", len(summary.Skipped), "error", err)
	}

	slog.Info("Imported result artifacts", "found", summary.Found, "imported", summary.Imported)

	return summary, nil
}
