package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryproj/quarry/internal/scheduler"
)

func TestSnapshotRoundTrip(t *testing.T) {
	due := time.Now().Add(time.Hour).UTC()
	orig := New("repo.sync", []any{"repo-1", float64(3)},
		WithTimeout(time.Minute),
		WithScheduledAt(due),
		WithSchedule(scheduler.Every(time.Hour)),
		AsAsync())
	orig.SetProgress("step", "queued")
	orig.markEnqueued(7, time.Now())

	restored, err := orig.Snapshot().Restore()
	require.NoError(t, err)

	assert.Equal(t, orig.ID(), restored.ID())
	assert.Equal(t, "repo.sync", restored.Method())
	assert.Equal(t, []any{"repo-1", float64(3)}, restored.Args())
	assert.Equal(t, time.Minute, restored.Timeout())
	assert.True(t, restored.Async())
	assert.True(t, restored.ScheduledAt().Equal(due))
	require.NotNil(t, restored.Schedule())
	assert.Equal(t, orig.Schedule().Spec(), restored.Schedule().Spec())
	assert.Equal(t, "queued", restored.Progress()["step"])
}

func TestRestoreAlwaysYieldsWaiting(t *testing.T) {
	tk := New("repo.sync", nil)
	tk.markStarted(time.Now())
	require.Equal(t, StateRunning, tk.State())

	restored, err := tk.Snapshot().Restore()
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, restored.State(),
		"a surviving snapshot means the executing process died; the running claim is void")
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	good := New("repo.sync", nil).Snapshot()

	unversioned := *good
	unversioned.Version = 99
	_, err := unversioned.Restore()
	assert.Error(t, err)

	anonymous := *good
	anonymous.ID = uuid.Nil
	_, err = anonymous.Restore()
	assert.Error(t, err)

	badState := *good
	badState.State = "limbo"
	_, err = badState.Restore()
	assert.Error(t, err)

	badSchedule := *good
	badSchedule.ScheduleSpec = "not a cron spec"
	_, err = badSchedule.Restore()
	assert.Error(t, err)
}

func TestMemorySnapshotStore(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	a := New("repo.sync", []any{"repo-1"})
	b := New("repo.sync", []any{"repo-2"})
	require.NoError(t, store.Save(ctx, a.Snapshot()))
	require.NoError(t, store.Save(ctx, b.Snapshot()))
	require.Equal(t, 2, store.Len())

	// Upsert by task id, not append.
	require.NoError(t, store.Save(ctx, a.Snapshot()))
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Delete(ctx, a.ID()))
	assert.Equal(t, 1, store.Len())

	// Deleting an absent record is a no-op.
	require.NoError(t, store.Delete(ctx, a.ID()))

	snaps, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, b.ID(), snaps[0].ID)
	assert.Equal(t, 0, store.Len(), "LoadAll drains the store")
}
