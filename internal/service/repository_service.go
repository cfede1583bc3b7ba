package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quarryproj/quarry/internal/domain"
	"github.com/quarryproj/quarry/internal/events"
	"github.com/quarryproj/quarry/internal/rmi"
	"github.com/quarryproj/quarry/internal/scheduler"
	"github.com/quarryproj/quarry/internal/store"
	"github.com/quarryproj/quarry/internal/task"
)

// RepositoryStore defines the persistence operations the service needs.
type RepositoryStore interface {
	Create(ctx context.Context, repo *domain.Repository) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Repository, error)
	List(ctx context.Context) ([]*domain.Repository, error)
	Update(ctx context.Context, repo *domain.Repository) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Syncer fetches a repository's feed and reconciles its package set.
// The returned count is the repository's package count after the sync.
type Syncer interface {
	Sync(ctx context.Context, repo *domain.Repository) (int, error)
}

// RemoteInvoker issues remote method invocations on behalf of a task.
// Implemented by rmi.Bridge.
type RemoteInvoker interface {
	Call(ctx context.Context, spec rmi.CallSpec) (string, error)
}

// RepositoryService manages repositories and submits their long-running
// operations as background tasks. Mutating flows never touch the task
// queue directly: they emit task-request events and let the registered
// handler admit them, so the API layer stays decoupled from queue
// internals.
type RepositoryService struct {
	store   RepositoryStore
	emitter events.EventEmitter
	invoker RemoteInvoker
	syncer  Syncer
	logger  *slog.Logger

	// syncTimeout bounds each sync/clone task; zero leaves them unbounded.
	syncTimeout time.Duration
}

// NewRepositoryService creates the service. invoker may be nil when no
// message bus is configured; agent notification then fails fast.
func NewRepositoryService(
	repoStore RepositoryStore,
	emitter events.EventEmitter,
	invoker RemoteInvoker,
	syncer Syncer,
	syncTimeout time.Duration,
	logger *slog.Logger,
) *RepositoryService {
	return &RepositoryService{
		store:       repoStore,
		emitter:     emitter,
		invoker:     invoker,
		syncer:      syncer,
		syncTimeout: syncTimeout,
		logger:      logger.With("component", "repository_service"),
	}
}

// CreateRepository validates and persists a new repository. When a sync
// schedule is set, a recurring sync task is established for it.
func (s *RepositoryService) CreateRepository(ctx context.Context, name, feedURL, syncSchedule string) (*domain.Repository, error) {
	if syncSchedule != "" {
		if _, err := scheduler.Parse(syncSchedule); err != nil {
			return nil, fmt.Errorf("%w: sync schedule %q: %v", ErrInvalidRepository, syncSchedule, err)
		}
	}

	repo, err := domain.NewRepository(name, feedURL, syncSchedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRepository, err)
	}

	if err := s.store.Create(ctx, repo); err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	s.logger.Info("repository created",
		"repository_id", repo.ID, "name", repo.Name, "sync_schedule", repo.SyncSchedule)

	if repo.SyncSchedule != "" {
		if _, err := s.scheduleSync(ctx, repo); err != nil {
			// The repository exists; the recurring task just wasn't
			// admitted. Leave it to a later RequestSync.
			s.logger.Error("failed to schedule recurring sync",
				"repository_id", repo.ID, "error", err)
		}
	}
	return repo, nil
}

// GetRepository retrieves one repository.
func (s *RepositoryService) GetRepository(ctx context.Context, id uuid.UUID) (*domain.Repository, error) {
	repo, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRepositoryNotFound) || errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id)
		}
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	return repo, nil
}

// ListRepositories returns all repositories ordered by name.
func (s *RepositoryService) ListRepositories(ctx context.Context) ([]*domain.Repository, error) {
	repos, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	return repos, nil
}

// DeleteRepository removes a repository.
func (s *RepositoryService) DeleteRepository(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrRepositoryNotFound) || errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRepositoryNotFound, id)
		}
		return fmt.Errorf("failed to delete repository: %w", err)
	}
	s.logger.Info("repository deleted", "repository_id", id)
	return nil
}

// RequestSync submits a one-shot sync task for the repository. The
// returned id identifies the admitted task. A sync or clone already
// active for the same repository surfaces as ErrSyncConflict.
func (s *RepositoryService) RequestSync(ctx context.Context, repoID uuid.UUID) (uuid.UUID, error) {
	repo, err := s.GetRepository(ctx, repoID)
	if err != nil {
		return uuid.Nil, err
	}
	return s.emitTask(ctx, MethodSyncRepository, []any{repo.ID.String()}, "")
}

// scheduleSync submits the recurring sync task derived from the
// repository's cron schedule.
func (s *RepositoryService) scheduleSync(ctx context.Context, repo *domain.Repository) (uuid.UUID, error) {
	return s.emitTask(ctx, MethodSyncRepository, []any{repo.ID.String()}, repo.SyncSchedule)
}

// RequestClone submits a task copying the repository's content into a
// new repository with the given name.
func (s *RepositoryService) RequestClone(ctx context.Context, repoID uuid.UUID, cloneName string) (uuid.UUID, error) {
	if cloneName == "" {
		return uuid.Nil, fmt.Errorf("%w: clone name is required", ErrInvalidRepository)
	}
	repo, err := s.GetRepository(ctx, repoID)
	if err != nil {
		return uuid.Nil, err
	}
	return s.emitTask(ctx, MethodCloneRepository, []any{repo.ID.String(), cloneName}, "")
}

// NotifyAgents submits one asynchronous task per consumer agent,
// instructing each to re-fetch the repository's bind data. Each task
// stays running until the agent's reply (or the watchdog) resolves it.
func (s *RepositoryService) NotifyAgents(ctx context.Context, repoID uuid.UUID, agentIDs []string) ([]uuid.UUID, error) {
	if s.invoker == nil {
		return nil, errors.New("no message bus configured for agent notification")
	}
	repo, err := s.GetRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}

	taskIDs := make([]uuid.UUID, 0, len(agentIDs))
	for _, agentID := range agentIDs {
		event, err := events.NewTaskRequestEvent(
			MethodNotifyAgent, []any{agentID, "Repo", "update", repo.ID.String()}, false)
		if err != nil {
			return taskIDs, fmt.Errorf("failed to create notify event: %w", err)
		}
		event.Async = true
		if s.syncTimeout > 0 {
			event.Timeout = s.syncTimeout
		}
		if err := s.emitter.EmitEvent(ctx, event); err != nil {
			return taskIDs, fmt.Errorf("failed to emit notify event for agent %s: %w", agentID, err)
		}
		taskIDs = append(taskIDs, event.ID)
	}
	return taskIDs, nil
}

// emitTask builds and emits a unique task-request event, translating a
// duplicate rejection into ErrSyncConflict.
func (s *RepositoryService) emitTask(ctx context.Context, method string, args []any, scheduleSpec string) (uuid.UUID, error) {
	event, err := events.NewTaskRequestEvent(method, args, true)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create task event: %w", err)
	}
	event.ScheduleSpec = scheduleSpec
	if s.syncTimeout > 0 {
		event.Timeout = s.syncTimeout
	}

	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		if errors.Is(err, task.ErrNotUnique) {
			return uuid.Nil, fmt.Errorf("%w", ErrSyncConflict)
		}
		return uuid.Nil, fmt.Errorf("failed to emit task event: %w", err)
	}

	s.logger.Info("task requested",
		"task_id", event.ID, "method", method, "schedule", scheduleSpec)
	return event.ID, nil
}
