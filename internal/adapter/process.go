package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// ProcessSpec describes a worker process to launch.
type ProcessSpec struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Process is a running worker. Its output streams are owned by the caller and
// must be drained; they reach EOF once every holder of the write end exits.
type Process interface {
	Pid() int
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
	// Terminate asks the process and its process group to stop.
	Terminate() error
	// Kill forcibly stops whatever is left of the process group, including
	// descendants that outlive the leader.
	Kill() error
}

// ProcessLauncher starts worker processes.
type ProcessLauncher interface {
	Start(ctx context.Context, spec ProcessSpec) (Process, error)
}

// LocalProcessLauncher starts processes with os/exec, each in its own process group.
type LocalProcessLauncher struct{}

// NewLocalProcessLauncher constructs a LocalProcessLauncher.
func NewLocalProcessLauncher() *LocalProcessLauncher {
	return &LocalProcessLauncher{}
}

// Start implements ProcessLauncher.
func (l *LocalProcessLauncher) Start(ctx context.Context, spec ProcessSpec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// #nosec G204 - the worker command is part of the operator's configuration
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir

	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	configureProcessGroup(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		slog.Error("Failed to start worker process", "path", spec.Path, "dir", spec.Dir, "error", err)

		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	// The child holds its own copies of the write ends.
	closeAll(stdoutW, stderrW)

	return &localProcess{cmd: cmd, stdout: stdoutR, stderr: stderrR}, nil
}

type localProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (p *localProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}

	return p.cmd.Process.Pid
}

func (p *localProcess) Stdout() io.ReadCloser { return p.stdout }

func (p *localProcess) Stderr() io.ReadCloser { return p.stderr }

func (p *localProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	return -1, err
}

func (p *localProcess) Terminate() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}

	return terminateProcessGroup(p.cmd.Process)
}

func (p *localProcess) Kill() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}

	return killProcessGroup(p.cmd.Process.Pid)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
