package api

import (
	"time"

	"github.com/quarryproj/quarry/internal/domain"
	"github.com/quarryproj/quarry/internal/task"
)

// CreateRepositoryRequest is the payload for creating a repository.
type CreateRepositoryRequest struct {
	Name         string `json:"name"          validate:"required,min=1,max=255"`
	FeedURL      string `json:"feed_url"      validate:"omitempty,url"`
	SyncSchedule string `json:"sync_schedule" validate:"omitempty"`
}

// CloneRepositoryRequest is the payload for cloning a repository.
type CloneRepositoryRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// RepositoryResponse is the representation of a repository.
type RepositoryResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	FeedURL      string     `json:"feed_url,omitempty"`
	SyncSchedule string     `json:"sync_schedule,omitempty"`
	PackageCount int        `json:"package_count"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TaskAcceptedResponse acknowledges an asynchronously processed request.
type TaskAcceptedResponse struct {
	TaskID string `json:"task_id"`
}

// TaskResponse is the representation of a task.
type TaskResponse struct {
	ID          string         `json:"id"`
	Method      string         `json:"method"`
	Args        []any          `json:"args,omitempty"`
	State       string         `json:"state"`
	Progress    map[string]any `json:"progress,omitempty"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Traceback   string         `json:"traceback,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	EnqueuedAt  *time.Time     `json:"enqueued_at,omitempty"`
}

func repositoryToResponse(repo *domain.Repository) RepositoryResponse {
	resp := RepositoryResponse{
		ID:           repo.ID.String(),
		Name:         repo.Name,
		FeedURL:      repo.FeedURL,
		SyncSchedule: repo.SyncSchedule,
		PackageCount: repo.PackageCount,
		CreatedAt:    repo.CreatedAt,
		UpdatedAt:    repo.UpdatedAt,
	}
	if !repo.LastSync.IsZero() {
		ls := repo.LastSync
		resp.LastSync = &ls
	}
	return resp
}

func taskToResponse(t *task.Task) TaskResponse {
	message, traceback := t.Err()
	resp := TaskResponse{
		ID:        t.ID().String(),
		Method:    t.Method(),
		Args:      t.Args(),
		State:     string(t.State()),
		Progress:  t.Progress(),
		Result:    t.Result(),
		Error:     message,
		Traceback: traceback,
	}
	if at := t.ScheduledAt(); !at.IsZero() {
		resp.ScheduledAt = &at
	}
	if at := t.EnqueuedAt(); !at.IsZero() {
		resp.EnqueuedAt = &at
	}
	return resp
}
