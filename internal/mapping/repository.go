package mapping

import (
	"context"
	"sync"
)

// Repository persists component mapping edges. The in-memory implementation
// backs single-process deployments and tests; the Neo4j implementation keeps
// the mapping queryable across the wider migration tooling.
type Repository interface {
	// StoreAssets persists the full asset set.
	StoreAssets(ctx context.Context, a *Assets) error
	// LoadAssets retrieves the asset set, nil when nothing is stored.
	LoadAssets(ctx context.Context) (*Assets, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// MemoryRepository holds assets in memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	assets *Assets
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) StoreAssets(_ context.Context, a *Assets) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = a
	return nil
}

func (m *MemoryRepository) LoadAssets(_ context.Context) (*Assets, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assets, nil
}

func (m *MemoryRepository) Close(_ context.Context) error { return nil }

var _ Repository = (*MemoryRepository)(nil)
