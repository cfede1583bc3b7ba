package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrRepositoryNotFound, ErrSnapshotNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a repository with the same name).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// Entity-specific "not found" errors

	// ErrRepositoryNotFound indicates that the requested repository does not
	// exist in the store.
	ErrRepositoryNotFound = fmt.Errorf("%w: repository", ErrNotFound)

	// ErrSnapshotNotFound indicates that the requested task snapshot does not
	// exist in the store.
	ErrSnapshotNotFound = fmt.Errorf("%w: task snapshot", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrRepositoryExists indicates that a repository with the given name
	// already exists.
	ErrRepositoryExists = fmt.Errorf("%w: repository name", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
// This includes the generic ErrNotFound and all entity-specific not found errors.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
// This includes the generic ErrDuplicate and all entity-specific duplicate errors.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
