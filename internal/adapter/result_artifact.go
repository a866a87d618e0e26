package adapter

import (
	"encoding/json"
	"fmt"
	"os"

	m "gooze.dev/pkg/mutrun/internal/model"
)

// ReadResultArtifact parses the result artifact a worker wrote at path.
// A missing file surfaces as an error satisfying errors.Is(err, os.ErrNotExist).
func ReadResultArtifact(path m.Path) (*m.ExecutionResult, error) {
	// #nosec G304 - artifact paths are chosen by the dispatcher
	data, err := os.ReadFile(string(path))
	if err != nil {
		return nil, fmt.Errorf("read result artifact: %w", err)
	}

	var result m.ExecutionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse result artifact %s: %w", path, err)
	}

	return &result, nil
}

// WriteResultArtifact writes result at path in the artifact schema.
func WriteResultArtifact(path m.Path, result m.ExecutionResult) error {
	if result.Outcomes == nil {
		result.Outcomes = []m.TestOutcome{}
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result artifact: %w", err)
	}

	return writeFileAtomic(string(path), data)
}
