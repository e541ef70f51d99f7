package workqueue

import (
	"context"
	"sync"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the task has finished.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Task is a unit of work admitted by the queue.
type Task interface {
	// ID returns a unique identifier. Enqueueing an ID that is already
	// pending or running is a no-op.
	ID() string

	// Name returns a human-readable name for logs.
	Name() string

	// Execute runs the task. ctx is cancelled when the queue shuts down.
	Execute(ctx context.Context) error
}

// TaskState holds the runtime state of a task.
type TaskState struct {
	Task        Task
	Status      TaskStatus
	EnqueuedAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       error

	mu sync.RWMutex
}

// NewTaskState creates a new TaskState wrapping a task.
func NewTaskState(task Task) *TaskState {
	return &TaskState{
		Task:       task,
		Status:     TaskStatusPending,
		EnqueuedAt: time.Now(),
	}
}

// GetStatus returns the current status (thread-safe).
func (ts *TaskState) GetStatus() TaskStatus {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.Status
}

// SetStatus updates the status and timestamps (thread-safe).
func (ts *TaskState) SetStatus(status TaskStatus) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.Status = status
	now := time.Now()

	switch {
	case status == TaskStatusRunning:
		ts.StartedAt = &now
	case status.IsTerminal():
		ts.CompletedAt = &now
	}
}

// SetError sets the error (thread-safe).
func (ts *TaskState) SetError(err error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.Error = err
}

// GetError returns the error (thread-safe).
func (ts *TaskState) GetError() error {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.Error
}

// Snapshot returns an immutable copy of the task state.
func (ts *TaskState) Snapshot() TaskSnapshot {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var errMsg string
	if ts.Error != nil {
		errMsg = ts.Error.Error()
	}

	return TaskSnapshot{
		ID:          ts.Task.ID(),
		Name:        ts.Task.Name(),
		Status:      ts.Status,
		EnqueuedAt:  ts.EnqueuedAt,
		StartedAt:   ts.StartedAt,
		CompletedAt: ts.CompletedAt,
		Error:       errMsg,
	}
}

// TaskSnapshot is an immutable view of task state for serialization.
type TaskSnapshot struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      TaskStatus `json:"status"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// FuncTask adapts a function to the Task interface.
type FuncTask struct {
	id   string
	name string
	fn   func(ctx context.Context) error
}

// NewFuncTask creates a task that runs fn.
func NewFuncTask(id, name string, fn func(ctx context.Context) error) *FuncTask {
	return &FuncTask{id: id, name: name, fn: fn}
}

func (t *FuncTask) ID() string                        { return t.id }
func (t *FuncTask) Name() string                      { return t.name }
func (t *FuncTask) Execute(ctx context.Context) error { return t.fn(ctx) }
