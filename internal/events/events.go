package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskRequestEvent represents a request to create a background task.
// It carries the task method name and serialized arguments without a
// direct dependency on the task package.
type TaskRequestEvent struct {
	// ID is a unique identifier for this event.
	ID uuid.UUID `json:"id"`

	// Method is the callable registry name of the requested task.
	Method string `json:"method"`

	// Args contains the task arguments serialized as a JSON array.
	Args json.RawMessage `json:"args"`

	// Unique requests duplicate suppression at admission: the event is
	// dropped when a task with the same derived key is already active.
	Unique bool `json:"unique"`

	// Timeout bounds the task's running time; zero means unbounded.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Async marks the task as asynchronously completed: its callable
	// only initiates the work and the outcome arrives later through the
	// remote-invocation bridge.
	Async bool `json:"async,omitempty"`

	// ScheduleSpec is an optional cron expression establishing a
	// recurring task. Empty means run once.
	ScheduleSpec string `json:"schedule_spec,omitempty"`

	// CreatedAt is the timestamp when the event was created.
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalArgs decodes the event arguments into the provided value.
func (e *TaskRequestEvent) UnmarshalArgs(v any) error {
	return json.Unmarshal(e.Args, v)
}

// NewTaskRequestEvent creates a TaskRequestEvent for the given method
// and argument list.
func NewTaskRequestEvent(method string, args []any, unique bool) (*TaskRequestEvent, error) {
	argBytes, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	return &TaskRequestEvent{
		ID:        uuid.New(),
		Method:    method,
		Args:      argBytes,
		Unique:    unique,
		CreatedAt: time.Now(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
