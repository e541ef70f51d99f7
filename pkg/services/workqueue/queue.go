package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrQueueClosed is returned by Enqueue after Shutdown.
	ErrQueueClosed = errors.New("work queue is shut down")

	// ErrDuplicateTask is returned when a task with the same ID is already
	// pending or running.
	ErrDuplicateTask = errors.New("task already queued")
)

// defaultRetainFinished bounds how many finished tasks stay visible in
// GetTasks before the oldest are dropped.
const defaultRetainFinished = 100

// Queue admits long-running tasks under a concurrency strategy. Tasks run
// once; failures are recorded, never retried.
type Queue struct {
	mu     sync.Mutex
	tasks  []*TaskState
	closed bool

	strategy       ConcurrencyStrategy
	retainFinished int

	// idle is closed whenever no task is pending or running
	idle chan struct{}
	wg   sync.WaitGroup

	// Cancellation context handed to running tasks
	ctx    context.Context
	cancel context.CancelFunc

	onUpdate func(TaskSnapshot)

	logger *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithStrategy sets the concurrency strategy.
func WithStrategy(strategy ConcurrencyStrategy) QueueOption {
	return func(q *Queue) {
		if strategy != nil {
			q.strategy = strategy
		}
	}
}

// WithRetainFinished sets how many finished tasks GetTasks reports.
func WithRetainFinished(n int) QueueOption {
	return func(q *Queue) {
		if n >= 0 {
			q.retainFinished = n
		}
	}
}

// WithOnUpdate sets a callback invoked on every task status change.
// It runs while the queue lock is held and must not call back into the queue.
func WithOnUpdate(fn func(TaskSnapshot)) QueueOption {
	return func(q *Queue) {
		q.onUpdate = fn
	}
}

// New creates a work queue. The default strategy runs one task at a time.
func New(logger *zap.Logger, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	q := &Queue{
		strategy:       NewSerializedStrategy(),
		retainFinished: defaultRetainFinished,
		idle:           idle,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger.Named("workqueue"),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Enqueue adds a task and starts it if the strategy allows.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("queue shut down, rejecting task",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()))
		return ErrQueueClosed
	}

	for _, ts := range q.tasks {
		if ts.Task.ID() == task.ID() && !ts.GetStatus().IsTerminal() {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID())
		}
	}

	q.markBusyLocked()

	state := NewTaskState(task)
	q.tasks = append(q.tasks, state)

	q.logger.Info("task enqueued",
		zap.String("task_id", task.ID()),
		zap.String("task_name", task.Name()))

	q.notifyUpdateLocked(state)
	q.tryStartTasksLocked()
	return nil
}

// tryStartTasksLocked starts pending tasks in FIFO order while the strategy
// admits them. Must be called with lock held.
func (q *Queue) tryStartTasksLocked() {
	if q.closed {
		return
	}

	for _, ts := range q.tasks {
		if ts.GetStatus() != TaskStatusPending {
			continue
		}
		if !q.strategy.CanStart() {
			return
		}

		q.strategy.OnStart()
		ts.SetStatus(TaskStatusRunning)
		q.notifyUpdateLocked(ts)

		q.logger.Info("starting task",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()))

		q.wg.Add(1)
		go q.runTask(ts)
	}
}

func (q *Queue) runTask(ts *TaskState) {
	defer q.wg.Done()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		err = ts.Task.Execute(q.ctx)
	}()

	q.completeTask(ts, err)
}

// completeTask records the outcome and admits the next pending task.
func (q *Queue) completeTask(ts *TaskState, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.strategy.OnComplete()

	switch {
	case err == nil:
		ts.SetStatus(TaskStatusCompleted)
		q.logger.Info("task completed",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()))
	case errors.Is(err, context.Canceled):
		ts.SetStatus(TaskStatusCancelled)
		q.logger.Info("task cancelled",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()))
	default:
		ts.SetError(err)
		ts.SetStatus(TaskStatusFailed)
		q.logger.Error("task failed",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()),
			zap.Error(err))
	}

	q.notifyUpdateLocked(ts)
	q.pruneFinishedLocked()
	q.tryStartTasksLocked()

	if q.allTasksDoneLocked() {
		q.markIdleLocked()
	}
}

// pruneFinishedLocked drops the oldest finished tasks beyond retainFinished.
// Must be called with lock held.
func (q *Queue) pruneFinishedLocked() {
	finished := 0
	for _, ts := range q.tasks {
		if ts.GetStatus().IsTerminal() {
			finished++
		}
	}
	excess := finished - q.retainFinished
	if excess <= 0 {
		return
	}

	kept := q.tasks[:0]
	for _, ts := range q.tasks {
		if excess > 0 && ts.GetStatus().IsTerminal() {
			excess--
			continue
		}
		kept = append(kept, ts)
	}
	q.tasks = kept
}

// allTasksDoneLocked returns true if all tasks are in a terminal state.
// Must be called with lock held.
func (q *Queue) allTasksDoneLocked() bool {
	for _, ts := range q.tasks {
		if !ts.GetStatus().IsTerminal() {
			return false
		}
	}
	return true
}

// markIdleLocked closes the idle channel. Must be called with lock held.
func (q *Queue) markIdleLocked() {
	select {
	case <-q.idle:
	default:
		close(q.idle)
	}
}

// markBusyLocked replaces a closed idle channel. Must be called with lock held.
func (q *Queue) markBusyLocked() {
	select {
	case <-q.idle:
		q.idle = make(chan struct{})
	default:
	}
}

func (q *Queue) notifyUpdateLocked(ts *TaskState) {
	if q.onUpdate == nil {
		return
	}
	q.onUpdate(ts.Snapshot())
}

// GetTasks returns a snapshot of active and recently finished tasks.
func (q *Queue) GetTasks() []TaskSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshots := make([]TaskSnapshot, len(q.tasks))
	for i, ts := range q.tasks {
		snapshots[i] = ts.Snapshot()
	}
	return snapshots
}

// Wait blocks until no task is pending or running, or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks, cancels pending ones, signals running
// tasks through their context and waits for them to return or ctx to end.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.logger.Info("queue shutting down, signaling running tasks to stop")
		q.cancel()

		for _, ts := range q.tasks {
			if ts.GetStatus() == TaskStatusPending {
				ts.SetStatus(TaskStatusCancelled)
				q.notifyUpdateLocked(ts)
			}
		}
		if q.allTasksDoneLocked() {
			q.markIdleLocked()
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Progress returns a progress summary.
func (q *Queue) Progress() Progress {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := Progress{Total: len(q.tasks)}
	for _, ts := range q.tasks {
		switch ts.GetStatus() {
		case TaskStatusPending:
			p.Pending++
		case TaskStatusRunning:
			p.Running++
		case TaskStatusCompleted:
			p.Completed++
		case TaskStatusFailed:
			p.Failed++
		case TaskStatusCancelled:
			p.Cancelled++
		}
	}
	return p
}

// Progress holds queue progress statistics.
type Progress struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
