package adapter

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	m "gooze.dev/pkg/mutrun/internal/model"
)

// TaskFile is handed to a worker process and names the mutations it must apply.
type TaskFile struct {
	TaskID    int            `yaml:"taskId"`
	Mutations []TaskMutation `yaml:"mutations"`
}

// TaskMutation is one entry of a TaskFile.
type TaskMutation struct {
	ID           int64 `yaml:"id"`
	m.Descriptor `yaml:",inline"`
}

// WriteTaskFile writes the task file for taskID at path.
func WriteTaskFile(path m.Path, taskID int, mutations ...m.Mutation) error {
	task := TaskFile{TaskID: taskID}
	for _, mutation := range mutations {
		task.Mutations = append(task.Mutations, TaskMutation{ID: mutation.ID, Descriptor: mutation.Descriptor})
	}

	data, err := yaml.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task file: %w", err)
	}

	if err := writeFileAtomic(string(path), data); err != nil {
		slog.Error("Failed to write task file", "path", path, "error", err)
		return fmt.Errorf("write task file: %w", err)
	}

	return nil
}

// ReadTaskFile loads a task file written by WriteTaskFile.
func ReadTaskFile(path m.Path) (TaskFile, error) {
	// #nosec G304 - task files are written by the dispatcher
	data, err := os.ReadFile(string(path))
	if err != nil {
		return TaskFile{}, fmt.Errorf("read task file: %w", err)
	}

	var task TaskFile
	if err := yaml.Unmarshal(data, &task); err != nil {
		return TaskFile{}, fmt.Errorf("parse task file %s: %w", path, err)
	}

	return task, nil
}
