// Package vector provides similarity search over ingested context
// embeddings. The in-memory index is a pure derived structure over the
// context store: it holds id + vector + metadata projections only and is
// fully rebuildable at any time.
package vector

import (
	"context"

	"github.com/loomctl/loom/internal/store"
)

// Entry is the reference-only projection of a store record held by the
// index. Payload text stays in the store and is resolved by id.
type Entry struct {
	ID         string
	Vector     []float32
	Section    store.Section
	Repository string
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID    string
	Score float32
}

// Filter restricts a search to matching entries. It is applied as a hard
// predicate before ranking so topK results are the true top-K among matches.
// Zero values match everything.
type Filter struct {
	Section    store.Section
	Repository string
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e *Entry) bool {
	if f.Section != "" && e.Section != f.Section {
		return false
	}
	if f.Repository != "" && e.Repository != f.Repository {
		return false
	}
	return true
}

// Searcher answers top-K similarity queries. Implemented by the in-memory
// Index and by the Qdrant-backed searcher.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error)
}
