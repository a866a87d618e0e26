package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gooze.dev/pkg/mutrun/internal/adapter"
	"gooze.dev/pkg/mutrun/internal/controller"
	m "gooze.dev/pkg/mutrun/internal/model"
	"gooze.dev/pkg/mutrun/pkg/filespill"
)

// DefaultWatchInterval is how often the deadline watchdog checks running tasks.
const DefaultWatchInterval = time.Second

// Environment variables handed to every worker.
const (
	EnvRunID    = "MUTRUN_RUN_ID"
	EnvTaskID   = "MUTRUN_TASK_ID"
	EnvTraceDir = "MUTRUN_TRACE_DIR"
)

// Per-task file names inside the task directory.
const (
	TaskFileName   = "task.yaml"
	ResultFileName = "result.json"
)

// RunArgs configures one dispatch.
type RunArgs struct {
	RunID           string
	Command         string
	Args            []string
	Env             []string
	WorkRoot        m.Path
	Template        m.Path
	OutputDir       m.Path
	TraceDir        m.Path
	SpillDir        string
	Parallel        int
	MutationTimeout time.Duration
	WatchInterval   time.Duration
	PipeJoinTimeout time.Duration
	ControlPortBase int
	KeepWorkDirs    bool
	PersistResults  bool
}

// RunSummary is what a dispatch produced. Results must be removed by the caller.
type RunSummary struct {
	m.RunReport
	Results filespill.FileSpill[m.ExecutionResult]
}

// Dispatcher runs every mutation of the selected batch in its own worker.
type Dispatcher struct {
	selector *Selector
	pool     *ResourcePool
	launcher adapter.ProcessLauncher
	killer   adapter.Killer
	fs       adapter.WorkspaceFS
	store    adapter.MutationStore
	ui       controller.UI
}

// NewDispatcher wires a Dispatcher. store receives results when
// RunArgs.PersistResults is set.
func NewDispatcher(
	selector *Selector,
	pool *ResourcePool,
	launcher adapter.ProcessLauncher,
	killer adapter.Killer,
	fs adapter.WorkspaceFS,
	store adapter.MutationStore,
	ui controller.UI,
) *Dispatcher {
	return &Dispatcher{
		selector: selector,
		pool:     pool,
		launcher: launcher,
		killer:   killer,
		fs:       fs,
		store:    store,
		ui:       ui,
	}
}

// Run dispatches the batch and blocks until every task has finished or been
// destroyed. Cancelling ctx destroys all running tasks; tasks not yet started
// are reported as unresolved.
func (d *Dispatcher) Run(ctx context.Context, args RunArgs) (RunSummary, error) {
	started := time.Now()

	batch, err := d.selector.Batch(ctx)
	if err != nil {
		slog.Error("Failed to select mutations", "error", err)
		return RunSummary{}, fmt.Errorf("select batch: %w", err)
	}

	results, err := filespill.New[m.ExecutionResult](args.SpillDir)
	if err != nil {
		return RunSummary{}, fmt.Errorf("create result spill: %w", err)
	}

	if err := d.ui.Start(ctx, controller.WithRunMode(len(batch))); err != nil {
		_ = results.Remove()
		slog.Error("Failed to start UI", "error", err)

		return RunSummary{}, err
	}

	d.ui.DisplayConcurrencyInfo(ctx, args.Parallel, d.pool.Capacity(), len(batch))

	run := &dispatchRun{
		dispatcher: d,
		args:       args,
		results:    results,
		registry:   newTaskRegistry(),
		report:     m.RunReport{RunID: args.RunID, Total: len(batch), Classes: d.selector.ClassNames()},
	}

	watchdogDone := make(chan struct{})
	stopWatchdog := make(chan struct{})

	go func() {
		defer close(watchdogDone)
		run.watch(ctx, stopWatchdog)
	}()

	var group errgroup.Group
	if args.Parallel > 0 {
		group.SetLimit(args.Parallel)
	}

	for i, mutation := range batch {
		taskID := i + 1
		current := mutation

		group.Go(func() error {
			run.record(run.runTask(ctx, taskID, current))
			return nil
		})
	}

	_ = group.Wait()

	close(stopWatchdog)
	<-watchdogDone

	run.report.NotExercised = d.selector.Unapplied()
	run.report.Duration = time.Since(started)

	d.ui.DisplayRunSummary(ctx, run.report)
	d.ui.Close(ctx)

	slog.Info("Run finished", "runID", args.RunID, "total", run.report.Total, "completed", run.report.Completed,
		"destroyed", run.report.Destroyed, "unresolved", len(run.report.Unresolved), "duration", run.report.Duration)

	return RunSummary{RunReport: run.report, Results: results}, nil
}

type dispatchRun struct {
	dispatcher *Dispatcher
	args       RunArgs
	results    filespill.FileSpill[m.ExecutionResult]
	registry   *taskRegistry

	mu     sync.Mutex
	report m.RunReport
}

func (r *dispatchRun) record(task m.TaskReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch task.State {
	case m.TaskCompleted:
		r.report.Completed++
	case m.TaskDestroyed:
		r.report.Destroyed++
		r.report.Unresolved = append(r.report.Unresolved, task.Mutation)
	case m.TaskUnresolved:
		r.report.Unresolved = append(r.report.Unresolved, task.Mutation)
	}
}

func (r *dispatchRun) runTask(ctx context.Context, taskID int, mutation m.Mutation) m.TaskReport {
	report := m.TaskReport{TaskID: taskID, Mutation: mutation, State: m.TaskUnresolved, ExitCode: -1}

	if ctx.Err() != nil {
		slog.Info("Run cancelled before task start", "taskID", taskID, "mutation", mutation.String())
		return report
	}

	d := r.dispatcher

	spec, err := r.prepare(taskID, mutation)
	if err != nil {
		slog.Error("Failed to prepare task", "taskID", taskID, "mutation", mutation.String(), "error", err)
		d.ui.DisplayCompletedTestInfo(ctx, report)

		return report
	}

	supervisor := NewSupervisor(spec, SupervisorDeps{
		Pool:            d.pool,
		Launcher:        d.launcher,
		Killer:          d.killer,
		FS:              d.fs,
		PipeJoinTimeout: r.args.PipeJoinTimeout,
	})

	if !r.registry.add(taskID, supervisor) {
		// The run is being torn down.
		_ = supervisor.Destroy(context.Background())
	}

	d.ui.DisplayStartingTestInfo(ctx, mutation, taskID)

	if err := supervisor.Run(ctx); err != nil {
		slog.Warn("Task did not run", "taskID", taskID, "error", err)
	}

	r.registry.remove(taskID)

	report.ExitCode = supervisor.ExitCode()
	report.Elapsed = supervisor.Runtime()

	result, ok := supervisor.Result()

	switch {
	case ok && result.MutationID != mutation.ID:
		slog.Error("Result belongs to another mutation", "taskID", taskID, "expected", mutation.ID, "got", result.MutationID)
	case ok:
		report.State = m.TaskCompleted
		report.Result = result
		r.collect(ctx, taskID, mutation, *result)
	case supervisor.WasDestroyed():
		report.State = m.TaskDestroyed
	}

	if !r.args.KeepWorkDirs {
		if err := d.fs.RemoveAll(spec.WorkDir); err != nil {
			slog.Warn("Failed to remove task directory", "taskID", taskID, "path", spec.WorkDir, "error", err)
		}
	}

	d.ui.DisplayCompletedTestInfo(ctx, report)

	return report
}

func (r *dispatchRun) prepare(taskID int, mutation m.Mutation) (TaskSpec, error) {
	d := r.dispatcher

	workDir, err := d.fs.PrepareTaskDir(r.args.WorkRoot, taskID, r.args.Template)
	if err != nil {
		return TaskSpec{}, fmt.Errorf("prepare work dir: %w", err)
	}

	taskFile := d.fs.JoinPath(string(workDir), TaskFileName)
	if err := adapter.WriteTaskFile(taskFile, taskID, mutation); err != nil {
		return TaskSpec{}, err
	}

	outputDir := r.args.OutputDir
	if outputDir == "" {
		outputDir = workDir
	}

	env := append([]string(nil), r.args.Env...)
	env = append(env, EnvRunID+"="+r.args.RunID, EnvTaskID+"="+strconv.Itoa(taskID))

	if r.args.TraceDir != "" {
		env = append(env, EnvTraceDir+"="+string(r.args.TraceDir))
	}

	return TaskSpec{
		TaskID:          taskID,
		Mutation:        mutation,
		Command:         r.args.Command,
		Args:            r.args.Args,
		Env:             env,
		WorkDir:         workDir,
		OutputFile:      d.fs.JoinPath(string(outputDir), fmt.Sprintf("task-%d.out", taskID)),
		ResultFile:      d.fs.JoinPath(string(workDir), ResultFileName),
		TaskFile:        taskFile,
		ControlPortBase: r.args.ControlPortBase,
	}, nil
}

func (r *dispatchRun) collect(ctx context.Context, taskID int, mutation m.Mutation, result m.ExecutionResult) {
	d := r.dispatcher

	if err := r.results.Append(result); err != nil {
		slog.Error("Failed to keep result", "taskID", taskID, "error", err)
	}

	if r.args.PersistResults && d.store != nil {
		if err := d.store.SaveResult(ctx, result); err != nil {
			slog.Error("Failed to persist result", "taskID", taskID, "mutationID", result.MutationID, "error", err)
		}
	}

	if d.selector.ContainsDescriptor(mutation) {
		d.selector.MarkApplied(mutation)
	}
}

// watch destroys tasks that outlive the mutation timeout, and every task once
// ctx is cancelled.
func (r *dispatchRun) watch(ctx context.Context, stop <-chan struct{}) {
	interval := r.args.WatchInterval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var destroying sync.WaitGroup
	defer destroying.Wait()

	destroy := func(supervisor *Supervisor, reason string) {
		destroying.Add(1)

		go func() {
			defer destroying.Done()

			slog.Info("Destroying task", "taskID", supervisor.Spec().TaskID, "reason", reason)
			// Teardown errors are informational; the instance is released regardless.
			_ = supervisor.Destroy(context.Background())
		}()
	}

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			for _, supervisor := range r.registry.drain() {
				destroy(supervisor, "run cancelled")
			}

			return
		case <-ticker.C:
			if r.args.MutationTimeout <= 0 {
				continue
			}

			for _, supervisor := range r.registry.snapshot() {
				if supervisor.Elapsed() > r.args.MutationTimeout {
					destroy(supervisor, "deadline exceeded")
				}
			}
		}
	}
}

// taskRegistry tracks the supervisors currently running.
type taskRegistry struct {
	mu       sync.Mutex
	tasks    map[int]*Supervisor
	draining bool
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{tasks: map[int]*Supervisor{}}
}

// add returns false once the registry is draining.
func (r *taskRegistry) add(taskID int, supervisor *Supervisor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.draining {
		return false
	}

	r.tasks[taskID] = supervisor

	return true
}

func (r *taskRegistry) remove(taskID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tasks, taskID)
}

func (r *taskRegistry) snapshot() []*Supervisor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Supervisor, 0, len(r.tasks))
	for _, supervisor := range r.tasks {
		out = append(out, supervisor)
	}

	return out
}

func (r *taskRegistry) drain() []*Supervisor {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.draining = true

	out := make([]*Supervisor, 0, len(r.tasks))
	for _, supervisor := range r.tasks {
		out = append(out, supervisor)
	}

	return out
}
