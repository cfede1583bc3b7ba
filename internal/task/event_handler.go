package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarryproj/quarry/internal/events"
	"github.com/quarryproj/quarry/internal/scheduler"
)

// EventHandler implements events.EventHandler: it turns task-request
// events emitted by the service layer into queued tasks, honoring the
// event's uniqueness flag. A suppressed duplicate is reported back as
// ErrNotUnique so callers can surface the conflict.
type EventHandler struct {
	queue  *TaskQueue
	logger *slog.Logger
}

// NewEventHandler creates an event handler submitting to the given queue.
func NewEventHandler(queue *TaskQueue, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		queue:  queue,
		logger: logger.With("component", "task_event_handler"),
	}
}

// HandleEvent builds a task from the event and enqueues it.
func (h *EventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	var args []any
	if len(event.Args) > 0 {
		if err := event.UnmarshalArgs(&args); err != nil {
			h.logger.Error("failed to unmarshal event args",
				"event_id", event.ID, "method", event.Method, "error", err)
			return fmt.Errorf("failed to unmarshal event args: %w", err)
		}
	}

	opts := []Option{WithID(event.ID)}
	if event.Timeout > 0 {
		opts = append(opts, WithTimeout(event.Timeout))
	}
	if event.Async {
		opts = append(opts, AsAsync())
	}
	if event.ScheduleSpec != "" {
		sched, err := scheduler.Parse(event.ScheduleSpec)
		if err != nil {
			h.logger.Error("invalid schedule spec on event",
				"event_id", event.ID, "method", event.Method,
				"spec", event.ScheduleSpec, "error", err)
			return fmt.Errorf("invalid schedule spec %q: %w", event.ScheduleSpec, err)
		}
		opts = append(opts, WithSchedule(sched), WithScheduledAt(sched.Next(time.Now())))
	}

	t, err := h.queue.Enqueue(ctx, New(event.Method, args, opts...), event.Unique)
	if err != nil {
		if errors.Is(err, ErrNotUnique) {
			h.logger.Info("duplicate task suppressed",
				"event_id", event.ID, "method", event.Method)
			return fmt.Errorf("task for method %s: %w", event.Method, ErrNotUnique)
		}
		h.logger.Error("failed to enqueue task for event",
			"event_id", event.ID, "method", event.Method, "error", err)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	h.logger.Info("task enqueued for event",
		"event_id", event.ID, "task_id", t.ID(), "method", event.Method)
	return nil
}

var _ events.EventHandler = (*EventHandler)(nil)
