package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

const defaultKillHelperTimeout = 30 * time.Second

// Killer is the out-of-band kill path used after graceful termination. It is
// keyed by task id so helpers can find processes by the identity they were
// launched with; pid is a hint for implementations that can use it.
type Killer interface {
	Kill(ctx context.Context, taskID int, pid int) error
}

// ProcessGroupKiller SIGKILLs the process group of the worker.
type ProcessGroupKiller struct{}

// NewProcessGroupKiller constructs a ProcessGroupKiller.
func NewProcessGroupKiller() *ProcessGroupKiller {
	return &ProcessGroupKiller{}
}

// Kill implements Killer.
func (k *ProcessGroupKiller) Kill(ctx context.Context, taskID int, pid int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if pid <= 0 {
		return fmt.Errorf("task %d: no pid to kill", taskID)
	}

	if err := killProcessGroup(pid); err != nil {
		return fmt.Errorf("kill process group of task %d (pid %d): %w", taskID, pid, err)
	}

	return nil
}

// HelperKiller runs an external helper as `<command> <taskID>`.
type HelperKiller struct {
	command string
	timeout time.Duration
}

// NewHelperKiller constructs a HelperKiller for the given command.
func NewHelperKiller(command string) *HelperKiller {
	return &HelperKiller{command: command, timeout: defaultKillHelperTimeout}
}

// Kill implements Killer.
func (k *HelperKiller) Kill(ctx context.Context, taskID int, _ int) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	// #nosec G204 - the kill helper is part of the operator's configuration
	cmd := exec.CommandContext(ctx, k.command, strconv.Itoa(taskID))

	output, err := cmd.CombinedOutput()
	if err != nil {
		slog.Warn("Kill helper failed", "command", k.command, "taskID", taskID, "output", string(output), "error", err)
		return fmt.Errorf("kill helper for task %d: %w", taskID, err)
	}

	slog.Debug("Kill helper finished", "command", k.command, "taskID", taskID)

	return nil
}
