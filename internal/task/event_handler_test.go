package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryproj/quarry/internal/events"
)

func TestHandleEventEnqueuesTask(t *testing.T) {
	q, reg, _ := newTestQueue(t, DefaultQueueConfig())
	reg.Register("repo.sync", func(ctx context.Context, tk *Task) (any, error) { return nil, nil })
	handler := NewEventHandler(q, testLogger())

	event, err := events.NewTaskRequestEvent("repo.sync", []any{"repo-1"}, true)
	require.NoError(t, err)
	event.Timeout = time.Minute

	require.NoError(t, handler.HandleEvent(context.Background(), event))

	tk := q.FindByID(event.ID)
	require.NotNil(t, tk, "the task carries the event's id")
	assert.Equal(t, "repo.sync", tk.Method())
	assert.Equal(t, []any{"repo-1"}, tk.Args())
	assert.Equal(t, time.Minute, tk.Timeout())
	assert.Equal(t, StateWaiting, tk.State())
}

func TestHandleEventAsyncAndSchedule(t *testing.T) {
	q, reg, _ := newTestQueue(t, DefaultQueueConfig())
	reg.Register("agent.notify", func(ctx context.Context, tk *Task) (any, error) { return nil, nil })
	handler := NewEventHandler(q, testLogger())

	event, err := events.NewTaskRequestEvent("agent.notify", []any{"agent-1"}, false)
	require.NoError(t, err)
	event.Async = true
	event.ScheduleSpec = "@every 1h"

	require.NoError(t, handler.HandleEvent(context.Background(), event))

	tk := q.FindByID(event.ID)
	require.NotNil(t, tk)
	assert.True(t, tk.Async())
	require.NotNil(t, tk.Schedule())
	assert.True(t, tk.ScheduledAt().After(time.Now()), "first run waits for the next occurrence")
}

func TestHandleEventReportsDuplicate(t *testing.T) {
	q, reg, _ := newTestQueue(t, DefaultQueueConfig())
	reg.Register("repo.sync", func(ctx context.Context, tk *Task) (any, error) { return nil, nil })
	handler := NewEventHandler(q, testLogger())

	first, err := events.NewTaskRequestEvent("repo.sync", []any{"repo-1"}, true)
	require.NoError(t, err)
	require.NoError(t, handler.HandleEvent(context.Background(), first))

	second, err := events.NewTaskRequestEvent("repo.sync", []any{"repo-1"}, true)
	require.NoError(t, err)
	err = handler.HandleEvent(context.Background(), second)
	assert.ErrorIs(t, err, ErrNotUnique)
	assert.Nil(t, q.FindByID(second.ID))
}

func TestHandleEventRejectsBadSchedule(t *testing.T) {
	q, reg, _ := newTestQueue(t, DefaultQueueConfig())
	reg.Register("repo.sync", func(ctx context.Context, tk *Task) (any, error) { return nil, nil })
	handler := NewEventHandler(q, testLogger())

	event, err := events.NewTaskRequestEvent("repo.sync", nil, false)
	require.NoError(t, err)
	event.ScheduleSpec = "every other tuesday"

	assert.Error(t, handler.HandleEvent(context.Background(), event))
}

func TestHandleEventUnknownMethod(t *testing.T) {
	q, _, _ := newTestQueue(t, DefaultQueueConfig())
	handler := NewEventHandler(q, testLogger())

	event, err := events.NewTaskRequestEvent("no.such.method", nil, false)
	require.NoError(t, err)
	assert.Error(t, handler.HandleEvent(context.Background(), event))
}
