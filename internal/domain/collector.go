package domain

import (
	"fmt"
	"log/slog"

	m "gooze.dev/pkg/mutrun/internal/model"
	"gooze.dev/pkg/mutrun/pkg/filespill"
)

// ResultCollector indexes the results gathered during a run by mutation id so
// they can be joined onto catalog entries.
type ResultCollector struct {
	results map[int64]m.ExecutionResult
}

// NewResultCollector returns an empty collector.
func NewResultCollector() *ResultCollector {
	return &ResultCollector{results: map[int64]m.ExecutionResult{}}
}

// CollectFromSpill indexes every result held in spill. A later result for the
// same mutation replaces an earlier one.
func CollectFromSpill(spill filespill.FileSpill[m.ExecutionResult]) (*ResultCollector, error) {
	collector := NewResultCollector()

	err := spill.Range(func(_ uint64, result m.ExecutionResult) error {
		collector.Add(result)
		return nil
	})
	if err != nil {
		slog.Error("Failed to read collected results", "path", spill.Path(), "error", err)
		return nil, fmt.Errorf("collect results: %w", err)
	}

	return collector, nil
}

// Add records result.
func (c *ResultCollector) Add(result m.ExecutionResult) {
	c.results[result.MutationID] = result
}

// Len is the number of distinct mutations with a collected result.
func (c *ResultCollector) Len() int {
	if c == nil {
		return 0
	}

	return len(c.results)
}

// Lookup returns the collected result for id.
func (c *ResultCollector) Lookup(id int64) (m.ExecutionResult, bool) {
	if c == nil {
		return m.ExecutionResult{}, false
	}

	result, ok := c.results[id]

	return result, ok
}

// Apply attaches the collected result for mutation, if any, over whatever the
// catalog already held.
func (c *ResultCollector) Apply(mutation *m.Mutation) {
	result, ok := c.Lookup(mutation.ID)
	if !ok {
		return
	}

	mutation.Result = &result
	mutation.Status = m.StatusDone
}
