package model

import "time"

// TaskState is how a dispatched task ended.
type TaskState string

const (
	// TaskCompleted tasks produced a result artifact.
	TaskCompleted TaskState = "completed"
	// TaskDestroyed tasks were force-stopped before producing a result.
	TaskDestroyed TaskState = "destroyed"
	// TaskUnresolved tasks ended without a usable result.
	TaskUnresolved TaskState = "unresolved"
)

// TaskReport describes one finished task.
type TaskReport struct {
	TaskID   int
	Mutation Mutation
	State    TaskState
	ExitCode int
	Elapsed  time.Duration
	Result   *ExecutionResult
}

// RunReport is the end-of-run summary of a dispatch.
type RunReport struct {
	RunID     string
	Total     int
	Completed int
	Destroyed int
	// Unresolved lists mutations whose task ended without a result.
	Unresolved []Mutation
	// NotExercised lists batch mutations never confirmed as exercised.
	NotExercised []Mutation
	// Classes are the distinct classes of the batch, sorted.
	Classes  []string
	Duration time.Duration
}
