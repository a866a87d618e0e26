// Package controller renders run progress, summaries and reports to the user.
package controller

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	m "gooze.dev/pkg/mutrun/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeReport StartMode = iota
	ModeRun
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode  StartMode
	total int
}

// WithReportMode starts the UI for one-shot report output.
func WithReportMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeReport
	}
}

// WithRunMode starts the UI for live progress of total tasks.
func WithRunMode(total int) StartOption {
	return func(c *StartConfig) {
		c.mode = ModeRun
		c.total = total
	}
}

func newStartConfig(options []StartOption) StartConfig {
	config := StartConfig{mode: ModeReport}
	for _, option := range options {
		option(&config)
	}

	return config
}

// UI is what the dispatcher and the commands report to.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context)
	DisplayConcurrencyInfo(ctx context.Context, parallel int, instances int, tasks int)
	DisplayStartingTestInfo(ctx context.Context, mutation m.Mutation, taskID int)
	DisplayCompletedTestInfo(ctx context.Context, report m.TaskReport)
	DisplayRunSummary(ctx context.Context, report m.RunReport)
	DisplayScores(ctx context.Context, table m.ScoreTable)
	DisplayTraceComparison(ctx context.Context, comparison m.TraceComparison)
}

// NewUI picks the live TUI for terminals and plain text otherwise.
func NewUI(cmd *cobra.Command, tty bool) UI {
	if tty {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether f is an interactive terminal.
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
