package task

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarryproj/quarry/internal/scheduler"
)

// FailurePolicy selects the scope of the consecutive-failure counter.
type FailurePolicy string

const (
	// FailurePolicyPerKey counts consecutive failures per unique key, so a
	// persistently broken sync target only blocks its own re-dispatch.
	FailurePolicyPerKey FailurePolicy = "per_key"

	// FailurePolicyGlobal counts consecutive failures across all tasks.
	FailurePolicyGlobal FailurePolicy = "global"
)

// QueueConfig holds the task queue thresholds.
type QueueConfig struct {
	// ConcurrencyThreshold caps how many tasks may be running at once.
	ConcurrencyThreshold int

	// FailureThreshold blocks dispatch after this many consecutive
	// failures until ResetFailures is called. Values below 1 disable the
	// guard.
	FailureThreshold int

	// FailurePolicy selects per-key or global failure counting.
	FailurePolicy FailurePolicy

	// ScheduleThreshold is the skip-if-stale window: a scheduled task whose
	// due time is older than now minus this window stays waiting instead of
	// running late. Zero disables staleness checking.
	ScheduleThreshold time.Duration

	// DispatchInterval is the period of the dispatch loop.
	DispatchInterval time.Duration
}

// DefaultQueueConfig returns a QueueConfig with reasonable defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		ConcurrencyThreshold: 4,
		FailureThreshold:     0,
		FailurePolicy:        FailurePolicyPerKey,
		DispatchInterval:     5 * time.Second,
	}
}

// runningTask tracks the execution context of a running task so the
// queue can interrupt it cooperatively.
type runningTask struct {
	t      *Task
	cancel context.CancelFunc
	timer  *time.Timer
}

// TaskQueue is the in-memory registry of tasks across all states. It
// admits tasks (enforcing uniqueness), promotes waiting tasks to running
// on a fixed dispatch interval while below the concurrency threshold,
// and is the sole mutator of task state. All public operations are safe
// for concurrent callers.
type TaskQueue struct {
	cfg      QueueConfig
	registry *Registry
	storage  SnapshotStore
	logger   *slog.Logger

	mu       sync.Mutex
	tasks    map[uuid.UUID]*Task
	waiting  []*Task
	running  map[uuid.UUID]*runningTask
	seq      uint64
	failures map[string]int
	closed   bool

	execCh chan execRequest
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskQueue creates a task queue with the given thresholds, callable
// registry and snapshot storage. Call Start before enqueueing.
func NewTaskQueue(
	cfg QueueConfig,
	registry *Registry,
	storage SnapshotStore,
	logger *slog.Logger,
) *TaskQueue {
	if cfg.ConcurrencyThreshold < 1 {
		logger.Warn("invalid concurrency threshold, using 1",
			"configured", cfg.ConcurrencyThreshold)
		cfg.ConcurrencyThreshold = 1
	}
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = 5 * time.Second
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = FailurePolicyPerKey
	}

	return &TaskQueue{
		cfg:      cfg,
		registry: registry,
		storage:  storage,
		logger:   logger.With("component", "task_queue"),
		tasks:    make(map[uuid.UUID]*Task),
		running:  make(map[uuid.UUID]*runningTask),
		failures: make(map[string]int),
		execCh:   make(chan execRequest, cfg.ConcurrencyThreshold),
	}
}

// Start recovers persisted snapshots into the waiting set, then starts
// the executor workers and the dispatch loop.
func (q *TaskQueue) Start(ctx context.Context) error {
	q.ctx, q.cancel = context.WithCancel(context.Background())

	if err := q.recover(ctx); err != nil {
		return fmt.Errorf("failed to recover persisted tasks: %w", err)
	}

	for i := 0; i < q.cfg.ConcurrencyThreshold; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.wg.Add(1)
	go q.dispatchLoop()

	q.logger.Info("task queue started",
		"concurrency_threshold", q.cfg.ConcurrencyThreshold,
		"dispatch_interval", q.cfg.DispatchInterval,
		"failure_threshold", q.cfg.FailureThreshold,
		"schedule_threshold", q.cfg.ScheduleThreshold)
	return nil
}

// Stop closes the queue to new submissions, cancels running task
// contexts, and waits for the workers and dispatch loop to exit.
func (q *TaskQueue) Stop() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	q.logger.Info("task queue stopped")
}

// recover reconstructs every persisted snapshot into a waiting task and
// re-enqueues it. LoadAll drains the durable records, making recovery
// single-shot: the in-memory queue becomes the source of truth.
func (q *TaskQueue) recover(ctx context.Context) error {
	snaps, err := q.storage.LoadAll(ctx)
	if err != nil {
		return err
	}

	for _, snap := range snaps {
		t, err := snap.Restore()
		if err != nil {
			q.logger.Error("discarding unrecoverable snapshot",
				"task_id", snap.ID, "error", err)
			continue
		}
		if _, err := q.Enqueue(ctx, t, true); err != nil {
			q.logger.Error("failed to re-enqueue recovered task",
				"task_id", t.ID(), "method", t.Method(), "error", err)
			continue
		}
		q.logger.Info("recovered task from snapshot",
			"task_id", t.ID(), "method", t.Method())
	}
	return nil
}

// Enqueue admits a task into the waiting set. When unique is true and a
// task with the same unique key is already waiting or running, the new
// task is discarded and ErrNotUnique returned: the caller receives no
// handle. The snapshot is persisted before the task becomes visible;
// a durable write failure fails the admission.
func (q *TaskQueue) Enqueue(ctx context.Context, t *Task, unique bool) (*Task, error) {
	if _, err := q.registry.Resolve(t.Method()); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	if unique {
		key := t.UniqueKey()
		for _, existing := range q.tasks {
			if !existing.State().Terminal() && existing.UniqueKey() == key {
				return nil, fmt.Errorf("%w: %s already %s as task %s",
					ErrNotUnique, t.Method(), existing.State(), existing.ID())
			}
		}
	}

	q.seq++
	t.markEnqueued(q.seq, time.Now())

	if err := q.storage.Save(ctx, t.Snapshot()); err != nil {
		return nil, fmt.Errorf("failed to persist task snapshot: %w", err)
	}

	q.tasks[t.ID()] = t
	q.waiting = append(q.waiting, t)

	q.logger.Debug("task enqueued",
		"task_id", t.ID(),
		"method", t.Method(),
		"unique", unique,
		"scheduled_at", t.ScheduledAt())
	return t, nil
}

// dispatchLoop runs dispatch on the configured interval until the queue
// stops. Only this coordinator promotes tasks; task bodies run on the
// worker pool.
func (q *TaskQueue) dispatchLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.dispatch()
		}
	}
}

// dispatch promotes eligible waiting tasks into running, oldest first,
// while below the concurrency threshold.
func (q *TaskQueue) dispatch() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for len(q.running) < q.cfg.ConcurrencyThreshold {
		idx := q.nextEligibleLocked(now)
		if idx < 0 {
			return
		}
		t := q.waiting[idx]
		q.waiting = append(q.waiting[:idx], q.waiting[idx+1:]...)
		q.promoteLocked(t)
	}
}

// nextEligibleLocked returns the index of the oldest waiting task that
// may run now, or -1. Waiting order is admission order, so the first
// match is FIFO-correct.
func (q *TaskQueue) nextEligibleLocked(now time.Time) int {
	for i, t := range q.waiting {
		due := t.ScheduledAt()
		if !due.IsZero() && due.After(now) {
			continue
		}
		// Stale scheduled runs are skipped rather than run late, to avoid
		// pile-up after downtime. The task stays waiting until a fresh due
		// time arrives via Reschedule or its recurrence.
		if q.cfg.ScheduleThreshold > 0 && t.Schedule() != nil &&
			!due.IsZero() && now.Sub(due) > q.cfg.ScheduleThreshold {
			continue
		}
		if q.failureBlockedLocked(t.UniqueKey()) {
			continue
		}
		return i
	}
	return -1
}

// failureBlockedLocked reports whether the failure threshold currently
// blocks dispatch for the given unique key.
func (q *TaskQueue) failureBlockedLocked(key string) bool {
	if q.cfg.FailureThreshold < 1 {
		return false
	}
	return q.failures[q.failureScope(key)] >= q.cfg.FailureThreshold
}

// failureScope maps a unique key onto the configured counter scope.
func (q *TaskQueue) failureScope(key string) string {
	if q.cfg.FailurePolicy == FailurePolicyGlobal {
		return ""
	}
	return key
}

// promoteLocked transitions a task to running and hands it to a worker.
func (q *TaskQueue) promoteLocked(t *Task) {
	fn, err := q.registry.Resolve(t.Method())
	if err != nil {
		// Registration disappeared since admission; fail the task rather
		// than stall the waiting set.
		q.finalizeLocked(t, StateFailed, nil, err.Error(), "")
		return
	}

	if !t.compareAndSetState(StateWaiting, StateRunning) {
		return
	}
	t.markStarted(time.Now())

	runCtx, cancel := context.WithCancel(q.ctx)
	rt := &runningTask{t: t, cancel: cancel}
	if d := t.Timeout(); d > 0 {
		id := t.ID()
		rt.timer = time.AfterFunc(d, func() { q.onTimeout(id) })
	}
	q.running[t.ID()] = rt

	q.logger.Debug("task dispatched",
		"task_id", t.ID(),
		"method", t.Method(),
		"running", len(q.running))

	// The channel is buffered to the concurrency threshold and promotions
	// only happen while running is below it, so this never blocks the
	// coordinator.
	q.execCh <- execRequest{t: t, ctx: runCtx, fn: fn}
}

// onExecuted receives the callable's outcome from a worker and drives
// the corresponding state transition.
func (q *TaskQueue) onExecuted(t *Task, result any, err error, traceback string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.running[t.ID()]; !ok {
		// Already resolved by timeout, cancellation or an async reply.
		return
	}

	if q.closed && err != nil && !t.cancelWasRequested() {
		// The error came from shutdown cancellation, not from the task.
		// Leave the snapshot in place so the next start recovers the task.
		return
	}

	switch {
	case err == nil && t.Async():
		// The callable only initiated the work; the task stays running
		// until the remote reply or the watchdog resolves it.
		q.logger.Debug("async task awaiting remote completion", "task_id", t.ID())
	case err == nil:
		q.finalizeLocked(t, StateSucceeded, result, "", "")
	case t.cancelWasRequested():
		q.finalizeLocked(t, StateCanceled, nil, "canceled by request", "")
	default:
		q.finalizeLocked(t, StateFailed, nil, err.Error(), traceback)
	}
}

// onTimeout force-transitions a still-running task to timed_out and
// cancels its context. Side effects of the callable are not rolled back.
func (q *TaskQueue) onTimeout(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rt, ok := q.running[id]
	if !ok || q.closed {
		return
	}
	t := rt.t
	q.logger.Warn("task exceeded its timeout",
		"task_id", id, "method", t.Method(), "timeout", t.Timeout())
	q.finalizeLocked(t, StateTimedOut,
		nil, fmt.Sprintf("task timed out after %s", t.Timeout()), "")
}

// Succeeded records an out-of-band success for a running task; it is the
// completion entry point used by the remote invocation reply consumer.
// Returns false when no running task has the given id.
func (q *TaskQueue) Succeeded(id uuid.UUID, result any) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	rt, ok := q.running[id]
	if !ok {
		return false
	}
	q.finalizeLocked(rt.t, StateSucceeded, result, "", "")
	return true
}

// Failed records an out-of-band failure for a running task, storing the
// remote error and a representation of the remote traceback. Returns
// false when no running task has the given id.
func (q *TaskQueue) Failed(id uuid.UUID, message, traceback string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	rt, ok := q.running[id]
	if !ok {
		return false
	}
	q.finalizeLocked(rt.t, StateFailed, nil, message, traceback)
	return true
}

// finalizeLocked performs the terminal transition: it releases the
// running slot, stores the outcome, deletes the snapshot exactly once,
// updates failure bookkeeping, and enqueues the next occurrence for
// recurring tasks. A terminal task never re-enters waiting.
func (q *TaskQueue) finalizeLocked(t *Task, terminal State, result any, message, traceback string) {
	now := time.Now()

	if rt, ok := q.running[t.ID()]; ok {
		if rt.timer != nil {
			rt.timer.Stop()
		}
		rt.cancel()
		delete(q.running, t.ID())
	}

	if terminal == StateSucceeded {
		t.finishSucceeded(result, now)
	} else {
		t.finishFailed(terminal, message, traceback, now)
	}

	// Deleting an already-absent snapshot is a no-op; a durable failure
	// here threatens crash-recovery correctness and is surfaced loudly.
	if err := q.storage.Delete(context.Background(), t.ID()); err != nil {
		q.logger.Error("failed to delete task snapshot on terminal transition",
			"task_id", t.ID(), "state", terminal, "error", err)
	}

	scope := q.failureScope(t.UniqueKey())
	switch terminal {
	case StateFailed, StateTimedOut:
		q.failures[scope]++
		if q.failureBlockedLocked(t.UniqueKey()) {
			q.logger.Warn("failure threshold reached, blocking dispatch until reset",
				"scope", scope, "failures", q.failures[scope])
		}
	case StateSucceeded:
		delete(q.failures, scope)
	}

	q.logger.Info("task finished",
		"task_id", t.ID(),
		"method", t.Method(),
		"state", terminal,
		"error", message)

	if sched := t.Schedule(); sched != nil {
		q.enqueueNextRunLocked(t, sched, now)
	}
}

// enqueueNextRunLocked admits a fresh task (new id) for the next
// occurrence of a recurring task. The unique check keeps overlapping
// runs out; losing the race to a concurrent manual submission is fine.
func (q *TaskQueue) enqueueNextRunLocked(t *Task, sched scheduler.Schedule, now time.Time) {
	if q.closed {
		return
	}

	next := New(t.Method(), t.Args(),
		WithTimeout(t.Timeout()),
		WithSchedule(sched),
		WithScheduledAt(sched.Next(now)))
	if t.Async() {
		AsAsync()(next)
	}

	key := next.UniqueKey()
	for _, existing := range q.tasks {
		if !existing.State().Terminal() && existing.UniqueKey() == key {
			q.logger.Debug("skipping next scheduled run, duplicate already active",
				"method", next.Method(), "existing_task_id", existing.ID())
			return
		}
	}

	q.seq++
	next.markEnqueued(q.seq, now)
	if err := q.storage.Save(context.Background(), next.Snapshot()); err != nil {
		q.logger.Error("failed to persist next scheduled run",
			"method", next.Method(), "error", err)
		return
	}
	q.tasks[next.ID()] = next
	q.waiting = append(q.waiting, next)

	q.logger.Debug("scheduled next run",
		"task_id", next.ID(),
		"method", next.Method(),
		"due", next.ScheduledAt())
}

// Cancel cancels a task. A waiting task is removed and marked canceled
// immediately. A running task gets a cooperative cancellation signal:
// its context is canceled and the terminal transition happens once the
// executing callable observes it and returns. Returns false for unknown
// or already-terminal tasks.
func (q *TaskQueue) Cancel(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return false
	}

	switch t.State() {
	case StateWaiting:
		for i, w := range q.waiting {
			if w.ID() == id {
				q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
				break
			}
		}
		q.finalizeLocked(t, StateCanceled, nil, "canceled before dispatch", "")
		return true
	case StateRunning:
		t.requestCancel()
		if rt, ok := q.running[id]; ok {
			rt.cancel()
		}
		q.logger.Debug("cancellation requested for running task", "task_id", id)
		return true
	default:
		return false
	}
}

// Reschedule updates the task's recurrence rule and, for a waiting
// task, its next due time, without altering its current state. The
// updated projection is persisted.
func (q *TaskQueue) Reschedule(ctx context.Context, id uuid.UUID, sched scheduler.Schedule) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	switch t.State() {
	case StateWaiting:
		t.setSchedule(sched, sched.Next(time.Now()))
	case StateRunning:
		// The new rule takes effect for the successor; the current run
		// continues undisturbed.
		t.setSchedule(sched, t.ScheduledAt())
	default:
		return fmt.Errorf("%w: %s is %s", ErrTaskNotFound, id, t.State())
	}

	if err := q.storage.Save(ctx, t.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist rescheduled task: %w", err)
	}
	return nil
}

// Criteria selects tasks for Find. Zero-valued fields match everything.
type Criteria struct {
	// ID matches the task with exactly this id.
	ID *uuid.UUID

	// State matches tasks currently in this state.
	State *State

	// Method matches tasks with this callable name.
	Method string

	// Arg matches tasks whose argument list contains this value.
	Arg any
}

// Find returns every task matching all the given criteria, in admission
// order. The scan is linear over the in-memory registry.
func (q *TaskQueue) Find(c Criteria) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Task
	for _, t := range q.tasks {
		if c.ID != nil && t.ID() != *c.ID {
			continue
		}
		if c.State != nil && t.State() != *c.State {
			continue
		}
		if c.Method != "" && t.Method() != c.Method {
			continue
		}
		if c.Arg != nil && !argsContain(t.Args(), c.Arg) {
			continue
		}
		out = append(out, t)
	}
	sortBySeq(out)
	return out
}

// FindByID returns the task with the given id, or nil.
func (q *TaskQueue) FindByID(id uuid.UUID) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks[id]
}

// Remove deletes a non-running task from the registry. Waiting tasks
// also lose their snapshot. Returns false for running or unknown tasks.
func (q *TaskQueue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok || t.State() == StateRunning {
		return false
	}

	if t.State() == StateWaiting {
		for i, w := range q.waiting {
			if w.ID() == id {
				q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
				break
			}
		}
		if err := q.storage.Delete(context.Background(), id); err != nil {
			q.logger.Error("failed to delete snapshot of removed task",
				"task_id", id, "error", err)
		}
	}
	delete(q.tasks, id)
	return true
}

// ResetFailures clears the consecutive-failure counters, re-enabling
// dispatch for keys blocked by the failure threshold.
func (q *TaskQueue) ResetFailures() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures = make(map[string]int)
	q.logger.Info("failure counters reset")
}

// WaitingTasks returns the waiting tasks in admission order.
func (q *TaskQueue) WaitingTasks() []*Task {
	return q.tasksInState(func(s State) bool { return s == StateWaiting })
}

// RunningTasks returns the running tasks in admission order.
func (q *TaskQueue) RunningTasks() []*Task {
	return q.tasksInState(func(s State) bool { return s == StateRunning })
}

// IncompleteTasks returns the waiting and running tasks.
func (q *TaskQueue) IncompleteTasks() []*Task {
	return q.tasksInState(func(s State) bool { return !s.Terminal() })
}

// CompleteTasks returns the tasks in a terminal state.
func (q *TaskQueue) CompleteTasks() []*Task {
	return q.tasksInState(State.Terminal)
}

// AllTasks returns every task in the registry.
func (q *TaskQueue) AllTasks() []*Task {
	return q.tasksInState(func(State) bool { return true })
}

func (q *TaskQueue) tasksInState(match func(State) bool) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Task
	for _, t := range q.tasks {
		if match(t.State()) {
			out = append(out, t)
		}
	}
	sortBySeq(out)
	return out
}

// sortBySeq orders tasks by admission sequence.
func sortBySeq(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].sequence() < tasks[j].sequence()
	})
}

// argsContain reports whether the argument list contains the value.
func argsContain(args []any, want any) bool {
	for _, a := range args {
		if reflect.DeepEqual(a, want) {
			return true
		}
	}
	return false
}
