package task

import "errors"

// Common errors returned by the task engine.
var (
	// ErrNotUnique is returned by Enqueue when unique admission is requested
	// and a task with the same unique key is already waiting or running.
	// The submitter receives no handle; retrying after the active task
	// completes is safe.
	ErrNotUnique = errors.New("task is not unique")

	// ErrQueueClosed is returned when an operation is attempted on a queue
	// that has been stopped.
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrUnknownMethod is returned when a task references a method that is
	// not present in the callable registry.
	ErrUnknownMethod = errors.New("unknown task method")

	// ErrTaskNotFound is returned when an operation references a task id
	// that is not in the registry.
	ErrTaskNotFound = errors.New("task not found")
)
