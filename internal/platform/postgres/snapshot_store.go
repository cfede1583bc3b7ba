package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quarryproj/quarry/internal/platform/logger"
	"github.com/quarryproj/quarry/internal/store"
	"github.com/quarryproj/quarry/internal/task"
)

// SnapshotStore implements task.SnapshotStore on the task_snapshots
// table. The full projection is stored as a versioned JSONB document;
// id and version are lifted into columns for keying and migration.
type SnapshotStore struct {
	db store.DBTX
}

// NewSnapshotStore creates a snapshot store on the given database handle.
func NewSnapshotStore(db store.DBTX) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save upserts the snapshot by task id.
func (s *SnapshotStore) Save(ctx context.Context, snap *task.Snapshot) error {
	log := logger.FromContext(ctx)

	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for task %s: %w", snap.ID, err)
	}

	query := `
		INSERT INTO task_snapshots (task_id, version, projection, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id)
		DO UPDATE SET version = $2, projection = $3, updated_at = $4
	`
	if _, err := s.db.ExecContext(ctx, query, snap.ID, snap.Version, doc, time.Now().UTC()); err != nil {
		log.Error("failed to save task snapshot",
			"task_id", snap.ID, "error", err)
		return fmt.Errorf("failed to save task snapshot: %w", MapError(err))
	}
	return nil
}

// Delete removes the record for the given task id; absent ids are a no-op.
func (s *SnapshotStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `DELETE FROM task_snapshots WHERE task_id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		log.Error("failed to delete task snapshot",
			"task_id", id, "error", err)
		return fmt.Errorf("failed to delete task snapshot: %w", MapError(err))
	}
	return nil
}

// LoadAll reads every persisted snapshot and removes the durable
// records, making crash recovery single-shot: a second cold start over
// an already-recovered store finds nothing.
func (s *SnapshotStore) LoadAll(ctx context.Context) ([]*task.Snapshot, error) {
	log := logger.FromContext(ctx)

	query := `DELETE FROM task_snapshots RETURNING task_id, projection`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to drain task snapshots", "error", err)
		return nil, fmt.Errorf("failed to drain task snapshots: %w", MapError(err))
	}
	defer rows.Close()

	var snaps []*task.Snapshot
	for rows.Next() {
		var id uuid.UUID
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan task snapshot row: %w", MapError(err))
		}

		var snap task.Snapshot
		if err := json.Unmarshal(doc, &snap); err != nil {
			// The record is already gone; losing an undecodable snapshot
			// is preferable to wedging recovery on it forever.
			log.Error("discarding undecodable task snapshot",
				"task_id", id, "error", err)
			continue
		}
		snaps = append(snaps, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task snapshot rows: %w", MapError(err))
	}

	log.Info("loaded persisted task snapshots", "count", len(snaps))
	return snaps, nil
}

var _ task.SnapshotStore = (*SnapshotStore)(nil)
