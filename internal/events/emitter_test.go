package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type captureHandler struct {
	events []*TaskRequestEvent
	err    error
}

func (h *captureHandler) HandleEvent(_ context.Context, event *TaskRequestEvent) error {
	h.events = append(h.events, event)
	return h.err
}

func TestNewTaskRequestEvent(t *testing.T) {
	event, err := NewTaskRequestEvent("repo.sync", []any{"repo-1", 3}, true)
	require.NoError(t, err)

	assert.Equal(t, "repo.sync", event.Method)
	assert.True(t, event.Unique)
	assert.False(t, event.CreatedAt.IsZero())

	var args []any
	require.NoError(t, event.UnmarshalArgs(&args))
	assert.Equal(t, []any{"repo-1", float64(3)}, args)
}

func TestEmitEventDeliversToAllHandlers(t *testing.T) {
	emitter := NewInMemoryEventEmitter(quietLogger())
	first := &captureHandler{}
	second := &captureHandler{}
	emitter.RegisterHandler(first)
	emitter.RegisterHandler(second)

	event, err := NewTaskRequestEvent("repo.sync", nil, false)
	require.NoError(t, err)
	require.NoError(t, emitter.EmitEvent(context.Background(), event))

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}

func TestEmitEventReturnsFirstHandlerError(t *testing.T) {
	emitter := NewInMemoryEventEmitter(quietLogger())
	failing := &captureHandler{err: errors.New("queue full")}
	trailing := &captureHandler{}
	emitter.RegisterHandler(failing)
	emitter.RegisterHandler(trailing)

	event, err := NewTaskRequestEvent("repo.sync", nil, false)
	require.NoError(t, err)

	err = emitter.EmitEvent(context.Background(), event)
	assert.EqualError(t, err, "queue full")
	assert.Len(t, trailing.events, 1, "later handlers still receive the event")
}

func TestEmitEventWithoutHandlers(t *testing.T) {
	emitter := NewInMemoryEventEmitter(quietLogger())
	event, err := NewTaskRequestEvent("repo.sync", nil, false)
	require.NoError(t, err)
	assert.NoError(t, emitter.EmitEvent(context.Background(), event))
}
