package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. It backs tests and ingest dry-runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// ListAll returns records ordered by id, matching the SQLite store.
func (m *MemoryStore) ListAll(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

// Put stores a record, replacing any existing record with the same id so
// re-ingesting a changed document refreshes its records in place.
func (m *MemoryStore) Put(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = *rec
	return nil
}

func (m *MemoryStore) PutBatch(ctx context.Context, recs []Record) error {
	for i := range recs {
		if err := m.Put(ctx, &recs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a record. Tests use it to simulate ids going stale between
// an index build and payload resolution.
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
