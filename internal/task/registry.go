package task

import (
	"context"
	"fmt"
	"sync"
)

// Func is the unit of work a task executes. It receives the task itself
// for argument access and progress reporting, and must honor ctx
// cancellation: the queue cannot preempt a callable that ignores its
// context; it can only record the cancellation or timeout.
//
// For async tasks the return only acknowledges that the work was
// initiated; the terminal result arrives later through
// TaskQueue.Succeeded / TaskQueue.Failed.
type Func func(ctx context.Context, t *Task) (any, error)

// Registry is the explicit dispatch table mapping method names to
// callables. Snapshots persist only the method name, so every method
// that may be recovered after a restart must be registered before the
// queue starts.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty callable registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds a callable under the given method name, replacing any
// previous registration.
func (r *Registry) Register(method string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[method] = fn
}

// Resolve looks up the callable for a method name.
func (r *Registry) Resolve(method string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return fn, nil
}

// Methods returns the registered method names, primarily for diagnostics.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	return out
}
