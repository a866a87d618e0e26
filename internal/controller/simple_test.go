package controller

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/mutrun/internal/model"
)

func newBufferedUI() (*SimpleUI, *bytes.Buffer) {
	var buf bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	return NewSimpleUI(cmd), &buf
}

func TestSimpleUI_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	ui, buf := newBufferedUI()
	mutation := m.Mutation{ID: 1, Descriptor: m.Descriptor{Class: "Foo", Method: "bar", Line: 3, Operator: "NEGATE"}}

	require.NoError(t, ui.Start(ctx, WithRunMode(1)))
	ui.DisplayConcurrencyInfo(ctx, 0, 2, 1)
	ui.DisplayStartingTestInfo(ctx, mutation, 1)
	ui.DisplayCompletedTestInfo(ctx, m.TaskReport{
		TaskID:   1,
		Mutation: mutation,
		State:    m.TaskCompleted,
		Result:   &m.ExecutionResult{MutationID: 1, Touched: true, Detected: true},
	})
	ui.DisplayRunSummary(ctx, m.RunReport{RunID: "run-1", Total: 1, Completed: 1})
	ui.Close(ctx)

	out := buf.String()
	assert.Contains(t, out, "Running 1 mutation(s) with unbounded worker(s) over 2 instance(s)")
	assert.Contains(t, out, "Starting task 1: "+mutation.String())
	assert.Contains(t, out, "Finished task 1: "+mutation.String()+" -> killed")
	assert.Contains(t, out, "run-1")
}

func TestSimpleUI_CancelledContextIsQuiet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ui, buf := newBufferedUI()

	require.Error(t, ui.Start(ctx))
	ui.DisplayConcurrencyInfo(ctx, 2, 2, 2)
	ui.DisplayStartingTestInfo(ctx, m.Mutation{}, 1)
	ui.DisplayCompletedTestInfo(ctx, m.TaskReport{TaskID: 1})

	assert.Empty(t, buf.String())
}

func TestDescribeTask(t *testing.T) {
	tests := []struct {
		name   string
		report m.TaskReport
		want   string
	}{
		{"killed", m.TaskReport{State: m.TaskCompleted, Result: &m.ExecutionResult{Touched: true, Detected: true}}, "killed"},
		{"survived", m.TaskReport{State: m.TaskCompleted, Result: &m.ExecutionResult{Touched: true}}, "survived"},
		{"not covered", m.TaskReport{State: m.TaskCompleted, Result: &m.ExecutionResult{Detected: true}}, "not covered"},
		{"destroyed", m.TaskReport{State: m.TaskDestroyed}, "destroyed"},
		{"unresolved", m.TaskReport{State: m.TaskUnresolved}, "unresolved"},
		{"completed without result", m.TaskReport{State: m.TaskCompleted}, "completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeTask(tt.report))
		})
	}
}

func TestNewUI(t *testing.T) {
	cmd := &cobra.Command{}

	assert.IsType(t, &SimpleUI{}, NewUI(cmd, false))
	assert.IsType(t, &TUI{}, NewUI(cmd, true))
	assert.False(t, IsTTY(nil))
}
