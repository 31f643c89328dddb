// Package taskqueue implements the priority- and dependency-gated task
// scheduler of spec §3/§4.6: tasks become eligible for dispatch only
// once every task they depend on reaches the Completed terminal state,
// and eligible tasks are handed to a bounded worker pool in priority
// order. Grounded on haasonsaas-nexus's internal/tasks package for the
// status-enum/terminal-state shape (types.go's TaskStatus/IsTerminal),
// built fresh since nexus's package targets cron-triggered chat
// dispatch rather than dependency-gated scheduling.
package taskqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/codeforge/codeforge/internal/errs"
)

// Status is the lifecycle state of a queued task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether a task in this status will never transition
// again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// QueuedTask is one unit of work submitted to the queue.
type QueuedTask struct {
	ID           string
	Prompt       string
	Priority     int // higher runs first among otherwise-eligible tasks
	DependsOn    []string
	Capabilities []string // capability tags required of the executing agent
	Timeout      time.Duration

	Status     Status
	Result     string
	Err        error
	EnqueuedAt time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Completed reports whether the task reached Completed specifically
// (not merely terminal) — the gating predicate spec §4.6 scenario 6
// requires for dependency satisfaction.
func (t *QueuedTask) Completed() bool {
	return t.Status == StatusCompleted
}

// Executor runs one task to completion, returning its textual result.
// Implementations dispatch into the conversation loop for a virtual
// agent matching the task's capability requirements.
type Executor interface {
	Execute(ctx context.Context, task *QueuedTask) (string, error)
}

// Queue holds tasks and dispatches eligible ones to a bounded pool of
// workers, honoring priority and dependency-completion gating.
type Queue struct {
	mu        sync.Mutex
	tasks     map[string]*QueuedTask
	ready     *priorityHeap
	maxAgents int
	active    int
	wake      chan struct{}
	executor  Executor
	closed    bool
}

// New constructs a Queue that runs at most maxAgents tasks concurrently.
func New(executor Executor, maxAgents int) *Queue {
	if maxAgents <= 0 {
		maxAgents = 1
	}
	q := &Queue{
		tasks:     make(map[string]*QueuedTask),
		ready:     &priorityHeap{},
		maxAgents: maxAgents,
		executor:  executor,
		wake:      make(chan struct{}, 1),
	}
	heap.Init(q.ready)
	return q
}

// signal wakes Run if it is blocked waiting for work; non-blocking.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Submit enqueues a task. Dependency cycles and unknown dependency ids
// are rejected at submission time.
func (q *Queue) Submit(task *QueuedTask) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return errs.New(errs.KindInvalidParameters, "queue is closed")
	}
	if _, exists := q.tasks[task.ID]; exists {
		q.mu.Unlock()
		return errs.New(errs.KindInvalidParameters, "duplicate task id: "+task.ID)
	}
	for _, dep := range task.DependsOn {
		if dep == task.ID {
			q.mu.Unlock()
			return errs.New(errs.KindInvalidParameters, "task depends on itself: "+task.ID)
		}
		// Every dependency must already be submitted, which also rules out
		// cycles: no earlier task can depend on this new id.
		if _, ok := q.tasks[dep]; !ok {
			q.mu.Unlock()
			return errs.New(errs.KindInvalidParameters, "unknown dependency "+dep+" for task "+task.ID)
		}
	}

	task.Status = StatusPending
	task.EnqueuedAt = time.Now()
	q.tasks[task.ID] = task

	if q.dependenciesSatisfiedLocked(task) {
		task.Status = StatusReady
		heap.Push(q.ready, task)
	}
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *Queue) dependenciesSatisfiedLocked(task *QueuedTask) bool {
	for _, dep := range task.DependsOn {
		dt, ok := q.tasks[dep]
		if !ok || !dt.Completed() {
			return false
		}
	}
	return true
}

// promoteReadyLocked scans pending tasks and moves any whose
// dependencies are now all Completed onto the ready heap.
func (q *Queue) promoteReadyLocked() {
	for _, t := range q.tasks {
		if t.Status == StatusPending && q.dependenciesSatisfiedLocked(t) {
			t.Status = StatusReady
			heap.Push(q.ready, t)
		}
	}
}

// Run drives the queue until ctx is cancelled, or until Close has been
// called and no task is ready or running (tasks still pending on an
// unfinished or failed dependency are left pending). It blocks the calling goroutine; callers
// typically run it in its own goroutine per codeforge process.
func (q *Queue) Run(ctx context.Context) {
	for {
		q.mu.Lock()
		hasWork := q.ready.Len() > 0
		idle := q.ready.Len() == 0 && q.active == 0
		done := q.closed && idle
		q.mu.Unlock()

		if done {
			return
		}
		if !hasWork {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}
			continue
		}

		q.mu.Lock()
		for q.ready.Len() > 0 && q.active < q.maxAgents {
			task := heap.Pop(q.ready).(*QueuedTask)
			q.active++
			task.Status = StatusRunning
			now := time.Now()
			task.StartedAt = &now
			go q.runTask(ctx, task)
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}

func (q *Queue) runTask(ctx context.Context, task *QueuedTask) {
	runCtx := ctx
	var cancel context.CancelFunc
	if task.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	result, err := q.executor.Execute(runCtx, task)

	q.mu.Lock()
	now := time.Now()
	task.FinishedAt = &now
	task.Result = result
	task.Err = err
	if err != nil {
		if errs.Is(err, errs.KindAborted) {
			task.Status = StatusCancelled
		} else {
			task.Status = StatusFailed
		}
	} else {
		task.Status = StatusCompleted
	}
	q.active--
	q.promoteReadyLocked()
	q.mu.Unlock()
	q.signal()
}

// Get returns a snapshot copy of a task's current state.
func (q *Queue) Get(id string) (QueuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return QueuedTask{}, false
	}
	return *t, true
}

// Close marks the queue as no-longer-accepting-submissions and wakes
// Run so it can exit once drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// priorityHeap orders QueuedTask pointers by descending Priority, then
// FIFO by EnqueuedAt.
type priorityHeap []*QueuedTask

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}
func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x any)   { *h = append(*h, x.(*QueuedTask)) }
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
