package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRepository(t *testing.T) {
	repo, err := NewRepository("fedora", "https://mirror.example.com/fedora", "0 3 * * *")
	require.NoError(t, err)

	assert.Equal(t, "fedora", repo.Name)
	assert.Equal(t, "https://mirror.example.com/fedora", repo.FeedURL)
	assert.Equal(t, "0 3 * * *", repo.SyncSchedule)
	assert.Zero(t, repo.PackageCount)
	assert.True(t, repo.LastSync.IsZero())
	assert.False(t, repo.CreatedAt.IsZero())
}

func TestNewRepositoryAllowsEmptyFeed(t *testing.T) {
	// Feedless repositories hold locally uploaded content only.
	_, err := NewRepository("local", "", "")
	assert.NoError(t, err)
}

func TestNewRepositoryValidation(t *testing.T) {
	_, err := NewRepository("", "https://mirror.example.com/fedora", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewRepository("fedora", "://no-scheme", "")
	assert.ErrorIs(t, err, ErrInvalidFeedURL)

	_, err = NewRepository("fedora", "relative/path", "")
	assert.ErrorIs(t, err, ErrInvalidFeedURL)
}

func TestRecordSync(t *testing.T) {
	repo, err := NewRepository("fedora", "https://mirror.example.com/fedora", "")
	require.NoError(t, err)

	at := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	repo.RecordSync(420, at)

	assert.Equal(t, 420, repo.PackageCount)
	assert.True(t, repo.LastSync.Equal(at))
	assert.False(t, repo.UpdatedAt.Before(repo.CreatedAt))
}
