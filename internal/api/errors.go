package api

import (
	"errors"
	"net/http"

	"github.com/quarryproj/quarry/internal/api/shared"
	"github.com/quarryproj/quarry/internal/domain"
	"github.com/quarryproj/quarry/internal/service"
	"github.com/quarryproj/quarry/internal/store"
	"github.com/quarryproj/quarry/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes.
// Unknown errors map to 500 so nothing internal leaks by accident.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrRepositoryNotFound),
		store.IsNotFoundError(err),
		errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrSyncConflict),
		errors.Is(err, task.ErrNotUnique),
		store.IsDuplicateError(err):
		return http.StatusConflict

	case errors.Is(err, service.ErrInvalidRepository),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for the error.
func GetSafeErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrRepositoryNotFound), store.IsNotFoundError(err):
		return "Repository not found"
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, service.ErrSyncConflict), errors.Is(err, task.ErrNotUnique):
		return "An equivalent task is already waiting or running"
	case store.IsDuplicateError(err):
		return "A repository with this name already exists"
	case errors.Is(err, service.ErrInvalidRepository),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return err.Error()
	case errors.Is(err, task.ErrQueueClosed):
		return "The task queue is shutting down"
	default:
		return "An internal error occurred"
	}
}

// HandleAPIError writes the appropriate error response for err. An
// empty message falls back to the error's safe message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithError(w, r, status, message)
}
