package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"gooze.dev/pkg/mutrun/internal/adapter"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// Worker process argument names.
const (
	ResultFileArg  = "-result="
	TaskFileArg    = "-task="
	ControlPortArg = "-port="
)

// TaskSpec binds one mutation to the files and command of a worker task.
type TaskSpec struct {
	TaskID          int
	Mutation        m.Mutation
	Command         string
	Args            []string
	Env             []string
	WorkDir         m.Path
	OutputFile      m.Path
	ResultFile      m.Path
	TaskFile        m.Path
	ControlPortBase int
}

// ControlPort is unique among concurrently running tasks because task ids are.
func (t TaskSpec) ControlPort() int {
	return t.ControlPortBase + t.TaskID
}

// CommandArgs builds the worker arguments for the acquired instance.
func (t TaskSpec) CommandArgs(inst m.Instance) []string {
	args := make([]string, 0, len(t.Args)+4)
	args = append(args, t.Args...)
	args = append(args,
		ResultFileArg+string(t.ResultFile),
		TaskFileArg+string(t.TaskFile),
		ControlPortArg+strconv.Itoa(t.ControlPort()),
		inst.ID,
	)

	return args
}

// SupervisorDeps are the collaborators shared by all supervisors of a run.
type SupervisorDeps struct {
	Pool     *ResourcePool
	Launcher adapter.ProcessLauncher
	Killer   adapter.Killer
	FS       adapter.WorkspaceFS

	// PipeJoinTimeout defaults to DefaultPipeJoinTimeout.
	PipeJoinTimeout time.Duration
}

// Supervisor owns one worker process: its instance, output streams and
// lifecycle. It is created per task and discarded once its result is read.
type Supervisor struct {
	spec TaskSpec
	deps SupervisorDeps
	now  func() time.Time

	mu        sync.Mutex
	instance  *m.Instance
	process   adapter.Process
	stdout    *pipeDrain
	stderr    *pipeDrain
	capture   io.WriteCloser
	startTime time.Time
	endTime   time.Time
	exitCode  int
	finished  bool
	destroyed bool
	cancel    context.CancelFunc

	released    bool
	finishOnce  sync.Once
	destroyOnce sync.Once
	done        chan struct{}

	resultLoaded bool
	result       *m.ExecutionResult
}

// NewSupervisor creates a supervisor for spec. Nothing starts until Run.
func NewSupervisor(spec TaskSpec, deps SupervisorDeps) *Supervisor {
	if deps.PipeJoinTimeout <= 0 {
		deps.PipeJoinTimeout = DefaultPipeJoinTimeout
	}

	return &Supervisor{
		spec:     spec,
		deps:     deps,
		now:      time.Now,
		exitCode: -1,
		done:     make(chan struct{}),
	}
}

// Spec returns the task the supervisor runs.
func (s *Supervisor) Spec() TaskSpec {
	return s.spec
}

// Run acquires an instance, launches the worker and blocks until the worker
// exits or the task is destroyed. The instance is released exactly once on
// every path.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.destroyed || s.finished {
		s.mu.Unlock()
		s.finish()

		return nil
	}

	s.cancel = cancel
	s.mu.Unlock()

	inst, err := s.deps.Pool.Acquire(ctx)
	if err != nil {
		s.finish()

		if s.isDestroyed() {
			return nil
		}

		return fmt.Errorf("task %d: acquire instance: %w", s.spec.TaskID, err)
	}

	s.mu.Lock()
	s.instance = &inst

	if s.destroyed {
		s.mu.Unlock()
		s.releaseInstance()
		s.finish()

		return nil
	}

	process, err := s.launch(ctx, inst)
	if err != nil {
		s.mu.Unlock()
		s.releaseInstance()
		s.finish()

		return err
	}

	s.mu.Unlock()

	exited := make(chan exitStatus, 1)

	go func() {
		code, err := process.Wait()
		exited <- exitStatus{code: code, err: err}
	}()

	select {
	case status := <-exited:
		s.mu.Lock()
		s.exitCode = status.code
		s.mu.Unlock()

		if status.err != nil {
			slog.Warn("Waiting for worker failed", "taskID", s.spec.TaskID, "error", status.err)
		}

		slog.Debug("Worker exited", "taskID", s.spec.TaskID, "exitCode", status.code, "elapsed", s.Elapsed())

		// Descendants left behind would hold the output pipes open.
		if err := process.Kill(); err != nil {
			slog.Warn("Failed to clean up worker process group", "taskID", s.spec.TaskID, "error", err)
		}

		s.joinPipes()
		s.releaseInstance()
		s.finish()
	case <-s.done:
		// Destroyed; the process may still be reaped later by the wait goroutine.
		slog.Debug("Worker abandoned after destroy", "taskID", s.spec.TaskID)
	}

	return nil
}

type exitStatus struct {
	code int
	err  error
}

// launch starts the worker. Callers hold s.mu.
func (s *Supervisor) launch(ctx context.Context, inst m.Instance) (adapter.Process, error) {
	capture, err := s.deps.FS.Create(s.spec.OutputFile)
	if err != nil {
		slog.Error("Failed to create output capture file", "taskID", s.spec.TaskID, "path", s.spec.OutputFile, "error", err)
		return nil, fmt.Errorf("task %d: create output file: %w", s.spec.TaskID, err)
	}

	args := s.spec.CommandArgs(inst)

	process, err := s.deps.Launcher.Start(ctx, adapter.ProcessSpec{
		Path: s.spec.Command,
		Args: args,
		Dir:  string(s.spec.WorkDir),
		Env:  s.spec.Env,
	})
	if err != nil {
		_ = capture.Close()
		return nil, fmt.Errorf("task %d: launch worker: %w", s.spec.TaskID, err)
	}

	slog.Info("Worker started", "taskID", s.spec.TaskID, "pid", process.Pid(), "instance", inst.ID, "command", s.spec.Command, "args", args)

	s.process = process
	s.capture = capture
	s.startTime = s.now()
	s.stdout = startPipeDrain("stdout", process.Stdout(), copyTo(capture))
	s.stderr = startPipeDrain("stderr", process.Stderr(), logLines(s.spec.TaskID, "stderr"))

	return process, nil
}

// Destroy forcibly shuts the task down: terminate, close pipes, out-of-band
// kill, release the instance. It is idempotent and a no-op on a task that has
// already finished. Step errors are logged and returned for information only;
// the instance is released regardless.
func (s *Supervisor) Destroy(ctx context.Context) error {
	var result error

	s.destroyOnce.Do(func() {
		s.mu.Lock()
		if s.finished {
			s.mu.Unlock()
			return
		}

		s.destroyed = true
		process := s.process
		cancel := s.cancel
		s.mu.Unlock()

		slog.Info("Destroying worker", "task", s.String())

		if cancel != nil {
			// Unblocks a pending Acquire.
			cancel()
		}

		var errs *multierror.Error

		if process != nil {
			if err := process.Terminate(); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("terminate: %w", err))
			}
		}

		s.closePipes()

		if process != nil && s.deps.Killer != nil {
			if err := s.deps.Killer.Kill(ctx, s.spec.TaskID, process.Pid()); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("kill: %w", err))
			}
		}

		s.releaseInstance()
		s.finish()

		result = errs.ErrorOrNil()
		if result != nil {
			slog.Warn("Worker teardown reported errors", "taskID", s.spec.TaskID, "error", result)
		}
	})

	return result
}

func (s *Supervisor) joinPipes() {
	s.mu.Lock()
	stdout, stderr, capture := s.stdout, s.stderr, s.capture
	s.mu.Unlock()

	for _, pipe := range []*pipeDrain{stdout, stderr} {
		if err := pipe.Join(s.deps.PipeJoinTimeout); err != nil {
			slog.Warn("Pipe did not close in time", "taskID", s.spec.TaskID, "pipe", pipe.name, "error", err)
		}
	}

	s.closeCapture(capture)
}

func (s *Supervisor) closePipes() {
	s.mu.Lock()
	stdout, stderr, capture := s.stdout, s.stderr, s.capture
	s.mu.Unlock()

	for _, pipe := range []*pipeDrain{stdout, stderr} {
		if pipe == nil {
			continue
		}

		slog.Debug("Shutting down pipe", "taskID", s.spec.TaskID, "pipe", pipe.name)

		if err := pipe.Close(s.deps.PipeJoinTimeout); err != nil {
			slog.Warn("Pipe did not close in time", "taskID", s.spec.TaskID, "pipe", pipe.name, "error", err)
		}
	}

	s.closeCapture(capture)
}

func (s *Supervisor) closeCapture(capture io.WriteCloser) {
	if capture == nil {
		return
	}

	if err := capture.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		slog.Warn("Failed to close output capture file", "taskID", s.spec.TaskID, "error", err)
	}
}

// releaseInstance hands the instance back once. Before Acquire has returned
// there is nothing to release and a later call still can.
func (s *Supervisor) releaseInstance() {
	s.mu.Lock()
	inst := s.instance
	if inst == nil || s.released {
		s.mu.Unlock()
		return
	}

	s.released = true
	s.mu.Unlock()

	if err := s.deps.Pool.Release(*inst); err != nil {
		slog.Error("Failed to release instance", "taskID", s.spec.TaskID, "instance", inst.ID, "error", err)
	}
}

func (s *Supervisor) finish() {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.finished = true
		s.endTime = s.now()
		s.mu.Unlock()

		close(s.done)
	})
}

func (s *Supervisor) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.destroyed
}

// Done is closed once the task has finished, naturally or by Destroy.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// IsFinished reports whether the task has finished.
func (s *Supervisor) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finished
}

// WasDestroyed reports whether the task was shut down by Destroy.
func (s *Supervisor) WasDestroyed() bool {
	return s.isDestroyed()
}

// ExitCode is the worker's exit status, or -1 if it did not exit naturally.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exitCode
}

// Elapsed is the time since the worker started while it runs, else 0.
func (s *Supervisor) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startTime.IsZero() || s.finished {
		return 0
	}

	return s.now().Sub(s.startTime)
}

// Runtime is how long the worker ran, measured once the task has finished.
func (s *Supervisor) Runtime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startTime.IsZero() || !s.finished {
		return 0
	}

	return s.endTime.Sub(s.startTime)
}

// Result reads the result artifact once the task has finished. A missing or
// unreadable artifact is reported as absent; the worker crashed or was killed
// before writing it.
func (s *Supervisor) Result() (*m.ExecutionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.finished {
		return nil, false
	}

	if s.resultLoaded {
		return s.result, s.result != nil
	}

	s.resultLoaded = true

	result, err := adapter.ReadResultArtifact(s.spec.ResultFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("Result file does not exist", "taskID", s.spec.TaskID, "path", s.spec.ResultFile)
		} else {
			slog.Warn("Result file is unreadable", "taskID", s.spec.TaskID, "path", s.spec.ResultFile, "error", err)
		}

		return nil, false
	}

	s.result = result

	return result, true
}

func (s *Supervisor) String() string {
	s.mu.Lock()
	inst := "<none>"
	if s.instance != nil {
		inst = s.instance.ID
	}
	s.mu.Unlock()

	var b strings.Builder

	fmt.Fprintf(&b, "task %d (%s)", s.spec.TaskID, s.spec.Mutation.String())
	fmt.Fprintf(&b, " command=%s", s.spec.Command)
	fmt.Fprintf(&b, " output=%s", s.spec.OutputFile)
	fmt.Fprintf(&b, " taskFile=%s", s.spec.TaskFile)
	fmt.Fprintf(&b, " instance=%s", inst)

	return b.String()
}
