package service

import "errors"

var (
	// ErrSyncConflict indicates a sync or clone for the same repository
	// is already waiting or running.
	ErrSyncConflict = errors.New("an equivalent task is already active for this repository")

	// ErrRepositoryNotFound indicates the referenced repository does not exist.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrInvalidRepository indicates repository input failed validation.
	ErrInvalidRepository = errors.New("invalid repository")
)
