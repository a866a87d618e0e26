package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	m "gooze.dev/pkg/mutrun/internal/model"
)

// SimpleUI implements UI using cobra Command's output writer.
type SimpleUI struct {
	cmd *cobra.Command
	mu  sync.Mutex
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	return ctx.Err()
}

// Close finalizes the UI.
func (s *SimpleUI) Close(context.Context) {}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(context.Context) {}

// DisplayConcurrencyInfo shows concurrency settings.
func (s *SimpleUI) DisplayConcurrencyInfo(ctx context.Context, parallel int, instances int, tasks int) {
	if ctx.Err() != nil {
		return
	}

	workers := "unbounded"
	if parallel > 0 {
		workers = fmt.Sprintf("%d", parallel)
	}

	s.printf("Running %d mutation(s) with %s worker(s) over %d instance(s)\n", tasks, workers, instances)
}

// DisplayStartingTestInfo shows info about the task starting.
func (s *SimpleUI) DisplayStartingTestInfo(ctx context.Context, mutation m.Mutation, taskID int) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Starting task %d: %s\n", taskID, mutation.String())
}

// DisplayCompletedTestInfo shows info about the task completion.
func (s *SimpleUI) DisplayCompletedTestInfo(ctx context.Context, report m.TaskReport) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Finished task %d: %s -> %s\n", report.TaskID, report.Mutation.String(), describeTask(report))
}

// DisplayRunSummary prints the end-of-run summary.
func (s *SimpleUI) DisplayRunSummary(_ context.Context, report m.RunReport) {
	s.printf("\n%s", RenderRunSummary(report))
}

// DisplayScores prints the score tables.
func (s *SimpleUI) DisplayScores(_ context.Context, table m.ScoreTable) {
	s.printf("%s", RenderScoreSummary(table))
}

// DisplayTraceComparison prints a trace comparison.
func (s *SimpleUI) DisplayTraceComparison(_ context.Context, comparison m.TraceComparison) {
	s.printf("%s", RenderTraceComparison(comparison))
}

func (s *SimpleUI) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}

func describeTask(report m.TaskReport) string {
	if report.State != m.TaskCompleted || report.Result == nil {
		return string(report.State)
	}

	return verdict(report.Result)
}
