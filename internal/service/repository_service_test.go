package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryproj/quarry/internal/domain"
	"github.com/quarryproj/quarry/internal/events"
	"github.com/quarryproj/quarry/internal/rmi"
	"github.com/quarryproj/quarry/internal/store"
	"github.com/quarryproj/quarry/internal/task"
)

// fakeRepositoryStore is an in-memory RepositoryStore.
type fakeRepositoryStore struct {
	mu    sync.Mutex
	repos map[uuid.UUID]*domain.Repository

	createErr error
	updateErr error
}

func newFakeRepositoryStore() *fakeRepositoryStore {
	return &fakeRepositoryStore{repos: make(map[uuid.UUID]*domain.Repository)}
}

func (f *fakeRepositoryStore) Create(_ context.Context, repo *domain.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.repos {
		if existing.Name == repo.Name {
			return fmt.Errorf("%w: %q", store.ErrRepositoryExists, repo.Name)
		}
	}
	cp := *repo
	f.repos[repo.ID] = &cp
	return nil
}

func (f *fakeRepositoryStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, ok := f.repos[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrRepositoryNotFound, id)
	}
	cp := *repo
	return &cp, nil
}

func (f *fakeRepositoryStore) List(_ context.Context) ([]*domain.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Repository, 0, len(f.repos))
	for _, repo := range f.repos {
		cp := *repo
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepositoryStore) Update(_ context.Context, repo *domain.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.repos[repo.ID]; !ok {
		return fmt.Errorf("%w: %s", store.ErrRepositoryNotFound, repo.ID)
	}
	cp := *repo
	f.repos[repo.ID] = &cp
	return nil
}

func (f *fakeRepositoryStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.repos[id]; !ok {
		return fmt.Errorf("%w: %s", store.ErrRepositoryNotFound, id)
	}
	delete(f.repos, id)
	return nil
}

// fakeEmitter records events and can simulate handler outcomes.
type fakeEmitter struct {
	mu      sync.Mutex
	events  []*events.TaskRequestEvent
	emitErr error
}

func (f *fakeEmitter) EmitEvent(_ context.Context, event *events.TaskRequestEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEmitter) last(t *testing.T) *events.TaskRequestEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.events)
	return f.events[len(f.events)-1]
}

// fakeInvoker records remote calls.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []rmi.CallSpec
	callErr error
}

func (f *fakeInvoker) Call(_ context.Context, spec rmi.CallSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return "", f.callErr
	}
	f.calls = append(f.calls, spec)
	return spec.TaskID.String() + ":1:" + rmi.ReplyTag, nil
}

// fakeSyncer returns a fixed package count or error.
type fakeSyncer struct {
	count int
	err   error
}

func (f *fakeSyncer) Sync(_ context.Context, _ *domain.Repository) (int, error) {
	return f.count, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

type serviceFixture struct {
	svc     *RepositoryService
	store   *fakeRepositoryStore
	emitter *fakeEmitter
	invoker *fakeInvoker
	syncer  *fakeSyncer
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		store:   newFakeRepositoryStore(),
		emitter: &fakeEmitter{},
		invoker: &fakeInvoker{},
		syncer:  &fakeSyncer{count: 10},
	}
	f.svc = NewRepositoryService(f.store, f.emitter, f.invoker, f.syncer, time.Minute, quietLogger())
	return f
}

func (f *serviceFixture) seedRepository(t *testing.T, name, feed, schedule string) *domain.Repository {
	t.Helper()
	repo, err := domain.NewRepository(name, feed, schedule)
	require.NoError(t, err)
	require.NoError(t, f.store.Create(context.Background(), repo))
	return repo
}

func TestCreateRepository(t *testing.T) {
	f := newServiceFixture()

	repo, err := f.svc.CreateRepository(context.Background(),
		"fedora-updates", "https://mirror.example.com/fedora", "")
	require.NoError(t, err)
	assert.Equal(t, "fedora-updates", repo.Name)

	stored, err := f.store.GetByID(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.Name, stored.Name)
	assert.Empty(t, f.emitter.events, "no schedule means no task submission")
}

func TestCreateRepositoryWithScheduleEmitsRecurringSync(t *testing.T) {
	f := newServiceFixture()

	repo, err := f.svc.CreateRepository(context.Background(),
		"fedora-updates", "https://mirror.example.com/fedora", "0 3 * * *")
	require.NoError(t, err)

	event := f.emitter.last(t)
	assert.Equal(t, MethodSyncRepository, event.Method)
	assert.True(t, event.Unique)
	assert.Equal(t, "0 3 * * *", event.ScheduleSpec)

	var args []string
	require.NoError(t, event.UnmarshalArgs(&args))
	assert.Equal(t, []string{repo.ID.String()}, args)
}

func TestCreateRepositoryRejectsBadSchedule(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.CreateRepository(context.Background(),
		"fedora-updates", "https://mirror.example.com/fedora", "whenever")
	assert.ErrorIs(t, err, ErrInvalidRepository)
}

func TestCreateRepositoryRejectsInvalidInput(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.CreateRepository(context.Background(), "", "", "")
	assert.ErrorIs(t, err, ErrInvalidRepository)
}

func TestRequestSyncEmitsUniqueEvent(t *testing.T) {
	f := newServiceFixture()
	repo := f.seedRepository(t, "fedora", "https://mirror.example.com/fedora", "")

	taskID, err := f.svc.RequestSync(context.Background(), repo.ID)
	require.NoError(t, err)

	event := f.emitter.last(t)
	assert.Equal(t, event.ID, taskID, "the announced task id is the event id")
	assert.Equal(t, MethodSyncRepository, event.Method)
	assert.True(t, event.Unique)
	assert.Equal(t, time.Minute, event.Timeout)
}

func TestRequestSyncUnknownRepository(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.RequestSync(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestRequestSyncMapsDuplicateToConflict(t *testing.T) {
	f := newServiceFixture()
	repo := f.seedRepository(t, "fedora", "https://mirror.example.com/fedora", "")
	f.emitter.emitErr = fmt.Errorf("enqueue: %w", task.ErrNotUnique)

	_, err := f.svc.RequestSync(context.Background(), repo.ID)
	assert.ErrorIs(t, err, ErrSyncConflict)
}

func TestRequestClone(t *testing.T) {
	f := newServiceFixture()
	repo := f.seedRepository(t, "fedora", "https://mirror.example.com/fedora", "")

	taskID, err := f.svc.RequestClone(context.Background(), repo.ID, "fedora-copy")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, taskID)

	event := f.emitter.last(t)
	assert.Equal(t, MethodCloneRepository, event.Method)

	var args []string
	require.NoError(t, event.UnmarshalArgs(&args))
	assert.Equal(t, []string{repo.ID.String(), "fedora-copy"}, args)
}

func TestRequestCloneRequiresName(t *testing.T) {
	f := newServiceFixture()
	repo := f.seedRepository(t, "fedora", "https://mirror.example.com/fedora", "")

	_, err := f.svc.RequestClone(context.Background(), repo.ID, "")
	assert.ErrorIs(t, err, ErrInvalidRepository)
}

func TestNotifyAgentsEmitsOneAsyncTaskPerAgent(t *testing.T) {
	f := newServiceFixture()
	repo := f.seedRepository(t, "fedora", "https://mirror.example.com/fedora", "")

	taskIDs, err := f.svc.NotifyAgents(context.Background(), repo.ID,
		[]string{"consumer-1", "consumer-2"})
	require.NoError(t, err)
	assert.Len(t, taskIDs, 2)
	require.Len(t, f.emitter.events, 2)

	for i, event := range f.emitter.events {
		assert.Equal(t, MethodNotifyAgent, event.Method)
		assert.True(t, event.Async)
		assert.False(t, event.Unique)
		assert.Equal(t, taskIDs[i], event.ID)
	}
}

func TestDeleteRepository(t *testing.T) {
	f := newServiceFixture()
	repo := f.seedRepository(t, "fedora", "https://mirror.example.com/fedora", "")

	require.NoError(t, f.svc.DeleteRepository(context.Background(), repo.ID))
	err := f.svc.DeleteRepository(context.Background(), repo.ID)
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestRunSyncUpdatesRepository(t *testing.T) {
	f := newServiceFixture()
	f.syncer.count = 1234
	repo := f.seedRepository(t, "fedora", "https://mirror.example.com/fedora", "")

	tk := task.New(MethodSyncRepository, []any{repo.ID.String()})
	result, err := f.svc.runSync(context.Background(), tk)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"repository_id": repo.ID.String(),
		"package_count": 1234,
	}, result)

	updated, err := f.store.GetByID(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1234, updated.PackageCount)
	assert.False(t, updated.LastSync.IsZero())
}

func TestRunSyncFailures(t *testing.T) {
	f := newServiceFixture()
	repo := f.seedRepository(t, "fedora", "https://mirror.example.com/fedora", "")

	// Unknown repository.
	tk := task.New(MethodSyncRepository, []any{uuid.New().String()})
	_, err := f.svc.runSync(context.Background(), tk)
	assert.ErrorIs(t, err, ErrRepositoryNotFound)

	// Malformed argument.
	tk = task.New(MethodSyncRepository, []any{"not-a-uuid"})
	_, err = f.svc.runSync(context.Background(), tk)
	assert.Error(t, err)

	// Feed failure propagates and leaves the repository untouched.
	f.syncer.err = errors.New("mirror unreachable")
	tk = task.New(MethodSyncRepository, []any{repo.ID.String()})
	_, err = f.svc.runSync(context.Background(), tk)
	require.Error(t, err)
	unchanged, err := f.store.GetByID(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.True(t, unchanged.LastSync.IsZero())
}

func TestRunCloneCreatesCopy(t *testing.T) {
	f := newServiceFixture()
	src := f.seedRepository(t, "fedora", "https://mirror.example.com/fedora", "")
	src.PackageCount = 77
	require.NoError(t, f.store.Update(context.Background(), src))

	tk := task.New(MethodCloneRepository, []any{src.ID.String(), "fedora-copy"})
	result, err := f.svc.runClone(context.Background(), tk)
	require.NoError(t, err)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	cloneID, err := uuid.Parse(m["repository_id"].(string))
	require.NoError(t, err)

	clone, err := f.store.GetByID(context.Background(), cloneID)
	require.NoError(t, err)
	assert.Equal(t, "fedora-copy", clone.Name)
	assert.Equal(t, src.FeedURL, clone.FeedURL)
	assert.Equal(t, 77, clone.PackageCount)
	assert.Empty(t, clone.SyncSchedule, "clones do not inherit the schedule")
}

func TestRunCloneRejectsDuplicateName(t *testing.T) {
	f := newServiceFixture()
	src := f.seedRepository(t, "fedora", "https://mirror.example.com/fedora", "")

	tk := task.New(MethodCloneRepository, []any{src.ID.String(), "fedora"})
	_, err := f.svc.runClone(context.Background(), tk)
	assert.ErrorIs(t, err, store.ErrRepositoryExists)
}

func TestRunNotifyIssuesRemoteCall(t *testing.T) {
	f := newServiceFixture()

	tk := task.New(MethodNotifyAgent,
		[]any{"consumer-1", "Repo", "update", "repo-1"},
		task.AsAsync(), task.WithTimeout(time.Minute))
	result, err := f.svc.runNotify(context.Background(), tk)
	require.NoError(t, err)
	assert.Nil(t, result, "initiation only; the reply resolves the task")

	require.Len(t, f.invoker.calls, 1)
	call := f.invoker.calls[0]
	assert.Equal(t, "consumer-1", call.AgentID)
	assert.Equal(t, "Repo", call.Class)
	assert.Equal(t, "update", call.Method)
	assert.Equal(t, []any{"repo-1"}, call.Args)
	assert.Equal(t, tk.ID(), call.TaskID)
	assert.Equal(t, time.Minute, call.Timeout)
}

func TestRunNotifyPropagatesPublishError(t *testing.T) {
	f := newServiceFixture()
	f.invoker.callErr = errors.New("bus down")

	tk := task.New(MethodNotifyAgent, []any{"consumer-1", "Repo", "update"})
	_, err := f.svc.runNotify(context.Background(), tk)
	assert.Error(t, err)
}

func TestRegisterTasksInstallsAllMethods(t *testing.T) {
	f := newServiceFixture()
	reg := task.NewRegistry()
	RegisterTasks(reg, f.svc)

	for _, method := range []string{MethodSyncRepository, MethodCloneRepository, MethodNotifyAgent} {
		_, err := reg.Resolve(method)
		assert.NoError(t, err, method)
	}
}
