// Package adapter contains the I/O boundaries of mutrun: stores, files,
// processes and external helpers.
package adapter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	m "gooze.dev/pkg/mutrun/internal/model"
)

// WorkspaceFS abstracts the filesystem operations the dispatcher needs to lay
// out per-task working directories. It hides direct `os` access so dispatch
// logic can be tested without touching the disk.
type WorkspaceFS interface {
	// PrepareTaskDir creates root/task-<id>. When template is non-empty its
	// contents are copied into the new directory.
	PrepareTaskDir(root m.Path, taskID int, template m.Path) (m.Path, error)

	// Create creates (or truncates) a file for writing, creating parent dirs.
	Create(path m.Path) (io.WriteCloser, error)

	// RemoveAll removes a directory and all its contents.
	RemoveAll(path m.Path) error

	// Exists reports whether path exists.
	Exists(path m.Path) (bool, error)

	// JoinPath joins path elements into a single path.
	JoinPath(elem ...string) m.Path
}

// LocalWorkspaceFS implements WorkspaceFS on the local disk.
type LocalWorkspaceFS struct{}

// NewLocalWorkspaceFS constructs a LocalWorkspaceFS.
func NewLocalWorkspaceFS() *LocalWorkspaceFS {
	return &LocalWorkspaceFS{}
}

// PrepareTaskDir implements WorkspaceFS.
func (a *LocalWorkspaceFS) PrepareTaskDir(root m.Path, taskID int, template m.Path) (m.Path, error) {
	dir := filepath.Join(string(root), "task-"+strconv.Itoa(taskID))

	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear task dir: %w", err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create task dir: %w", err)
	}

	if template != "" {
		if err := a.copyDir(string(template), dir); err != nil {
			return "", fmt.Errorf("copy template %s: %w", template, err)
		}
	}

	return m.Path(dir), nil
}

// Create implements WorkspaceFS.
func (a *LocalWorkspaceFS) Create(path m.Path) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(string(path)), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 - capture files live under the configured work root
	return os.Create(string(path))
}

// RemoveAll implements WorkspaceFS.
func (a *LocalWorkspaceFS) RemoveAll(path m.Path) error {
	return os.RemoveAll(string(path))
}

// Exists implements WorkspaceFS.
func (a *LocalWorkspaceFS) Exists(path m.Path) (bool, error) {
	_, err := os.Stat(string(path))
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// JoinPath implements WorkspaceFS.
func (a *LocalWorkspaceFS) JoinPath(elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}

func (a *LocalWorkspaceFS) copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		if info.IsDir() && filepath.Base(path) == ".git" {
			return filepath.SkipDir
		}

		targetPath := filepath.Join(dst, relPath)

		if info.IsDir() {
			return os.MkdirAll(targetPath, info.Mode())
		}

		return copyFile(path, targetPath, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	// #nosec G304 - src is a template file chosen by the operator
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() { _ = sourceFile.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	// #nosec G304 - dst is inside the task directory
	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	defer func() { _ = destFile.Close() }()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return os.Chmod(dst, mode)
}

// writeFileAtomic writes data next to path and renames it into place so
// readers never observe a half-written file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
