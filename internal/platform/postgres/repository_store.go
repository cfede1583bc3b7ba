package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quarryproj/quarry/internal/domain"
	"github.com/quarryproj/quarry/internal/platform/logger"
	"github.com/quarryproj/quarry/internal/store"
)

// RepositoryStore implements service.RepositoryStore on the
// repositories table.
type RepositoryStore struct {
	db store.DBTX
}

// NewRepositoryStore creates a repository store on the given database handle.
func NewRepositoryStore(db store.DBTX) *RepositoryStore {
	return &RepositoryStore{db: db}
}

// Create persists a new repository. A name collision surfaces as
// store.ErrRepositoryExists.
func (s *RepositoryStore) Create(ctx context.Context, repo *domain.Repository) error {
	log := logger.FromContext(ctx)

	if err := repo.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO repositories
			(id, name, feed_url, sync_schedule, package_count, last_sync, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		repo.ID,
		repo.Name,
		repo.FeedURL,
		repo.SyncSchedule,
		repo.PackageCount,
		nullTime(repo.LastSync),
		repo.CreatedAt,
		repo.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %q", store.ErrRepositoryExists, repo.Name)
		}
		log.Error("failed to create repository",
			"repository_id", repo.ID, "error", err)
		return fmt.Errorf("failed to create repository: %w", MapError(err))
	}
	return nil
}

// GetByID retrieves a repository by its id, returning
// store.ErrRepositoryNotFound when absent.
func (s *RepositoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Repository, error) {
	query := `
		SELECT id, name, feed_url, sync_schedule, package_count, last_sync, created_at, updated_at
		FROM repositories
		WHERE id = $1
	`
	repo, err := s.scanOne(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrRepositoryNotFound, id)
		}
		return nil, err
	}
	return repo, nil
}

// List returns every repository ordered by name.
func (s *RepositoryStore) List(ctx context.Context) ([]*domain.Repository, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT id, name, feed_url, sync_schedule, package_count, last_sync, created_at, updated_at
		FROM repositories
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to list repositories", "error", err)
		return nil, fmt.Errorf("failed to list repositories: %w", MapError(err))
	}
	defer rows.Close()

	var repos []*domain.Repository
	for rows.Next() {
		repo, err := scanRepository(rows.Scan)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating repository rows: %w", MapError(err))
	}
	return repos, nil
}

// Update persists the mutable repository fields.
func (s *RepositoryStore) Update(ctx context.Context, repo *domain.Repository) error {
	log := logger.FromContext(ctx)

	if err := repo.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE repositories
		SET feed_url = $1, sync_schedule = $2, package_count = $3, last_sync = $4, updated_at = $5
		WHERE id = $6
	`
	result, err := s.db.ExecContext(ctx, query,
		repo.FeedURL,
		repo.SyncSchedule,
		repo.PackageCount,
		nullTime(repo.LastSync),
		time.Now().UTC(),
		repo.ID,
	)
	if err != nil {
		log.Error("failed to update repository",
			"repository_id", repo.ID, "error", err)
		return fmt.Errorf("failed to update repository: %w", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", MapError(err))
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", store.ErrRepositoryNotFound, repo.ID)
	}
	return nil
}

// Delete removes a repository, returning store.ErrRepositoryNotFound
// when absent.
func (s *RepositoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete repository",
			"repository_id", id, "error", err)
		return fmt.Errorf("failed to delete repository: %w", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", MapError(err))
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", store.ErrRepositoryNotFound, id)
	}
	return nil
}

// scanOne reads a single repository row.
func (s *RepositoryStore) scanOne(row *sql.Row) (*domain.Repository, error) {
	repo, err := scanRepository(row.Scan)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// scanRepository maps one row onto a Repository.
func scanRepository(scan func(dest ...any) error) (*domain.Repository, error) {
	var repo domain.Repository
	var lastSync sql.NullTime
	err := scan(
		&repo.ID,
		&repo.Name,
		&repo.FeedURL,
		&repo.SyncSchedule,
		&repo.PackageCount,
		&lastSync,
		&repo.CreatedAt,
		&repo.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan repository row: %w", MapError(err))
	}
	if lastSync.Valid {
		repo.LastSync = lastSync.Time
	}
	return &repo, nil
}

// nullTime maps the zero time onto SQL NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
