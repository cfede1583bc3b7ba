package domain

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Repository
var (
	ErrEmptyRepositoryID   = errors.New("repository ID cannot be empty")
	ErrEmptyRepositoryName = errors.New("repository name cannot be empty")
)

// Repository represents a managed software package repository: a named
// collection of packages synced from an upstream feed and served to
// consumers. The sync itself is deferred work performed by the task
// engine; the entity only records bookkeeping about it.
type Repository struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	FeedURL      string    `json:"feed_url"`
	SyncSchedule string    `json:"sync_schedule,omitempty"`
	PackageCount int       `json:"package_count"`
	LastSync     time.Time `json:"last_sync,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewRepository creates a new Repository with the given name and feed URL.
// It generates a new UUID for the repository ID and sets the
// creation/update timestamps. Returns an error if validation fails.
func NewRepository(name, feedURL, syncSchedule string) (*Repository, error) {
	repo := &Repository{
		ID:           uuid.New(),
		Name:         name,
		FeedURL:      feedURL,
		SyncSchedule: syncSchedule,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := repo.Validate(); err != nil {
		return nil, err
	}

	return repo, nil
}

// Validate checks if the Repository has valid data.
// Returns an error if any field fails validation.
func (r *Repository) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("%w: repository id is required", ErrValidation)
	}

	if r.Name == "" {
		return fmt.Errorf("%w: repository name is required", ErrValidation)
	}

	if r.FeedURL != "" {
		u, err := url.Parse(r.FeedURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidFeedURL, r.FeedURL)
		}
	}

	return nil
}

// RecordSync updates the sync bookkeeping after a completed repository sync.
func (r *Repository) RecordSync(packageCount int, at time.Time) {
	r.PackageCount = packageCount
	r.LastSync = at.UTC()
	r.UpdatedAt = time.Now().UTC()
}
