package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quarryproj/quarry/internal/scheduler"
)

// SnapshotVersion is the current serialization schema version. Stores
// persist it with every record so future readers can migrate old
// projections instead of duck-typing them.
const SnapshotVersion = 1

// Snapshot is the durable projection of a Task: everything needed to
// reconstruct it after a crash, and nothing that only exists while the
// owning process is alive (results and errors belong to terminal tasks,
// which have no snapshot).
type Snapshot struct {
	Version      int            `json:"version"`
	ID           uuid.UUID      `json:"id"`
	Method       string         `json:"method"`
	Args         []any          `json:"args"`
	Timeout      time.Duration  `json:"timeout,omitempty"`
	Async        bool           `json:"async,omitempty"`
	State        State          `json:"state"`
	ScheduledAt  time.Time      `json:"scheduled_at,omitempty"`
	ScheduleSpec string         `json:"schedule_spec,omitempty"`
	Progress     map[string]any `json:"progress,omitempty"`
	EnqueuedAt   time.Time      `json:"enqueued_at,omitempty"`
}

// Snapshot captures the task's durable projection.
func (t *Task) Snapshot() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var spec string
	if t.schedule != nil {
		spec = t.schedule.Spec()
	}

	progress := make(map[string]any, len(t.progress))
	for k, v := range t.progress {
		progress[k] = v
	}

	return &Snapshot{
		Version:      SnapshotVersion,
		ID:           t.id,
		Method:       t.method,
		Args:         t.args,
		Timeout:      t.timeout,
		Async:        t.async,
		State:        t.state,
		ScheduledAt:  t.scheduledAt,
		ScheduleSpec: spec,
		Progress:     progress,
		EnqueuedAt:   t.enqueuedAt,
	}
}

// Restore reconstructs a Task from its durable projection. The task is
// always restored into the waiting state: if a snapshot survived, the
// process executing the task died, so any prior running claim is invalid.
func (s *Snapshot) Restore() (*Task, error) {
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d for task %s", s.Version, s.ID)
	}
	if s.ID == uuid.Nil {
		return nil, fmt.Errorf("snapshot has no task id")
	}
	if !s.State.valid() {
		return nil, fmt.Errorf("snapshot for task %s has unknown state %q", s.ID, s.State)
	}

	var sched scheduler.Schedule
	if s.ScheduleSpec != "" {
		var err error
		sched, err = scheduler.Parse(s.ScheduleSpec)
		if err != nil {
			return nil, fmt.Errorf("snapshot for task %s: %w", s.ID, err)
		}
	}

	progress := s.Progress
	if progress == nil {
		progress = make(map[string]any)
	}

	return &Task{
		id:          s.ID,
		method:      s.Method,
		args:        s.Args,
		timeout:     s.Timeout,
		async:       s.Async,
		state:       StateWaiting,
		progress:    progress,
		scheduledAt: s.ScheduledAt,
		schedule:    sched,
		enqueuedAt:  s.EnqueuedAt,
	}, nil
}

// SnapshotStore persists task projections keyed by task id.
//
// Save and Delete failures must be surfaced to the caller: crash
// recovery correctness depends on them not being silently swallowed.
// The store must tolerate concurrent calls for different task ids;
// calls for a single id are serialized by the owning queue.
type SnapshotStore interface {
	// Save upserts the snapshot by task id.
	Save(ctx context.Context, snap *Snapshot) error

	// Delete removes the record for the given task id. Deleting an
	// absent record is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// LoadAll returns every persisted snapshot and removes the underlying
	// durable records. It is called once, at startup: after reconstruction
	// the in-memory queue is the source of truth, and a second cold start
	// over an already-recovered store finds nothing.
	LoadAll(ctx context.Context) ([]*Snapshot, error)
}
