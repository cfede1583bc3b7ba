package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemorySnapshotStore is a map-backed SnapshotStore. It is used by tests
// and as a degraded mode when no database is configured; it survives
// queue restarts within a process but not process crashes.
//
// Records are held in their serialized form so that every snapshot is
// forced through the same round-trip contract the durable stores honor.
type MemorySnapshotStore struct {
	mu      sync.Mutex
	records map[uuid.UUID][]byte
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{records: make(map[uuid.UUID][]byte)}
}

// Save upserts the snapshot by task id.
func (s *MemorySnapshotStore) Save(_ context.Context, snap *Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot for task %s: %w", snap.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[snap.ID] = b
	return nil
}

// Delete removes the record for the given task id; absent ids are a no-op.
func (s *MemorySnapshotStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// LoadAll returns every stored snapshot and clears the store.
func (s *MemorySnapshotStore) LoadAll(_ context.Context) ([]*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps := make([]*Snapshot, 0, len(s.records))
	for id, b := range s.records {
		var snap Snapshot
		if err := json.Unmarshal(b, &snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot for task %s: %w", id, err)
		}
		snaps = append(snaps, &snap)
	}
	s.records = make(map[uuid.UUID][]byte)
	return snaps, nil
}

// Len reports the number of stored records; used by tests to assert the
// snapshot invariant.
func (s *MemorySnapshotStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)
