package task

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarryproj/quarry/internal/scheduler"
)

// State represents the current position of a task in its lifecycle.
type State string

// Possible task states. Transitions are monotonic along
// waiting -> running -> {succeeded|failed|canceled|timed_out}, with
// canceled also reachable directly from waiting.
const (
	StateWaiting   State = "waiting"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether the state is final. No transitions leave a
// terminal state.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCanceled, StateTimedOut:
		return true
	default:
		return false
	}
}

// ParseState converts a string into a known State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.valid() {
		return "", fmt.Errorf("unknown task state %q", s)
	}
	return st, nil
}

// valid reports whether s is a known state value.
func (s State) valid() bool {
	switch s {
	case StateWaiting, StateRunning, StateSucceeded, StateFailed, StateCanceled, StateTimedOut:
		return true
	default:
		return false
	}
}

// Task is a unit of deferred work: a named callable with arguments, an
// optional timeout, and a state machine owned by the queue. Once a task
// is enqueued the TaskQueue is the sole mutator of its state; submitters
// observe outcomes through the read accessors.
type Task struct {
	mu sync.RWMutex

	id      uuid.UUID
	method  string
	args    []any
	timeout time.Duration

	// async marks tasks whose completion is delivered out-of-band (by the
	// remote invocation bridge) rather than by the callable's return.
	async bool

	state     State
	progress  map[string]any
	result    any
	errMsg    string
	traceback string

	scheduledAt time.Time
	schedule    scheduler.Schedule

	enqueuedAt time.Time
	seq        uint64

	startedAt  time.Time
	finishedAt time.Time

	cancelRequested bool
}

// Option configures a Task at construction time.
type Option func(*Task)

// WithTimeout bounds the task's wall-clock running time. Exceeding it
// forces a transition to timed_out.
func WithTimeout(d time.Duration) Option {
	return func(t *Task) { t.timeout = d }
}

// WithID sets the task's identifier explicitly. Callers that announce a
// task id before enqueueing (e.g. API responses carrying the id of an
// event-driven task) use this to keep the two in agreement.
func WithID(id uuid.UUID) Option {
	return func(t *Task) {
		if id != uuid.Nil {
			t.id = id
		}
	}
}

// WithScheduledAt sets the earliest time the task may be dispatched.
func WithScheduledAt(at time.Time) Option {
	return func(t *Task) { t.scheduledAt = at.UTC() }
}

// WithSchedule associates a recurrence rule. When the task reaches a
// terminal state the queue enqueues a successor due at the next
// occurrence.
func WithSchedule(s scheduler.Schedule) Option {
	return func(t *Task) { t.schedule = s }
}

// AsAsync marks the task as asynchronously completed: the callable only
// initiates the work (typically a remote invocation) and the terminal
// transition is delivered later via TaskQueue.Succeeded or
// TaskQueue.Failed.
func AsAsync() Option {
	return func(t *Task) { t.async = true }
}

// New creates a Task in the waiting state for the named registry method
// and arguments. Args must be JSON-serializable values; they are
// persisted verbatim in snapshots.
func New(method string, args []any, opts ...Option) *Task {
	t := &Task{
		id:       uuid.New(),
		method:   method,
		args:     args,
		state:    StateWaiting,
		progress: make(map[string]any),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the task's unique identifier.
func (t *Task) ID() uuid.UUID { return t.id }

// Method returns the registry name of the task's callable.
func (t *Task) Method() string { return t.method }

// Args returns the task's arguments. The returned slice must not be
// mutated.
func (t *Task) Args() []any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.args
}

// Timeout returns the task's maximum running duration, zero when unbounded.
func (t *Task) Timeout() time.Duration { return t.timeout }

// Async reports whether completion is delivered out-of-band.
func (t *Task) Async() bool { return t.async }

// State returns the task's current state.
func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Result returns the value stored on transition to succeeded, nil otherwise.
func (t *Task) Result() any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// Err returns the error message and remote traceback stored on a failure
// transition. Both are empty unless the task failed or timed out.
func (t *Task) Err() (message, traceback string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errMsg, t.traceback
}

// ScheduledAt returns the task's earliest-allowed run time. The zero
// time means the task is eligible immediately.
func (t *Task) ScheduledAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scheduledAt
}

// Schedule returns the task's recurrence rule, nil for one-shot tasks.
func (t *Task) Schedule() scheduler.Schedule {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schedule
}

// EnqueuedAt returns the admission timestamp assigned by the queue.
func (t *Task) EnqueuedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enqueuedAt
}

// SetProgress records a named progress marker. It is the one field a
// running task body may mutate; the queue treats progress as read-only.
func (t *Task) SetProgress(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress[key] = value
}

// Progress returns a copy of the task's progress markers.
func (t *Task) Progress() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]any, len(t.progress))
	for k, v := range t.progress {
		out[k] = v
	}
	return out
}

// UniqueKey derives the deduplication key for the task: the method name
// plus the canonical JSON encoding of the arguments. Argument order is
// significant; map keys are ordered deterministically by encoding/json.
func (t *Task) UniqueKey() string {
	return UniqueKey(t.method, t.args)
}

// UniqueKey derives the deduplication key for a method/argument pair
// without constructing a task. Submitters can use it to probe for an
// active duplicate before building a payload.
func UniqueKey(method string, args []any) string {
	b, err := json.Marshal(args)
	if err != nil {
		// Non-serializable args cannot be snapshotted either; fall back to
		// the fmt representation so admission still has a deterministic key.
		return fmt.Sprintf("%s:%v", method, args)
	}
	return method + ":" + string(b)
}

// String implements fmt.Stringer for log lines.
func (t *Task) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf("Task[%s] %s (%s)", t.id, t.method, t.state)
}

// The setters below are unexported: state is owned by the queue, which
// serializes every mutation behind its own lock in addition to the
// task's.

// setState performs an unconditional state transition. Callers validate
// legality first.
func (t *Task) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// compareAndSetState transitions from exactly one expected state,
// reporting whether the swap happened.
func (t *Task) compareAndSetState(from, to State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != from {
		return false
	}
	t.state = to
	return true
}

func (t *Task) markEnqueued(seq uint64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq = seq
	t.enqueuedAt = at.UTC()
}

func (t *Task) markStarted(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedAt = at.UTC()
}

func (t *Task) finishSucceeded(result any, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateSucceeded
	t.result = result
	t.finishedAt = at.UTC()
}

func (t *Task) finishFailed(state State, message, traceback string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	t.errMsg = message
	t.traceback = traceback
	t.finishedAt = at.UTC()
}

func (t *Task) requestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelRequested = true
}

func (t *Task) cancelWasRequested() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelRequested
}

func (t *Task) setSchedule(s scheduler.Schedule, nextDue time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schedule = s
	t.scheduledAt = nextDue.UTC()
}

func (t *Task) sequence() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seq
}
