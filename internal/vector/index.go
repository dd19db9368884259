package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/loomctl/loom/internal/store"
)

// indexSnapshot is the immutable state served to readers. Rebuilds construct
// a fresh snapshot and swap it in atomically; in-flight queries keep reading
// the previous one.
type indexSnapshot struct {
	entries   []Entry // sorted by id; vectors L2-normalized
	dimension int
}

var emptySnapshot = &indexSnapshot{}

// Index is the in-memory similarity index. Reads are lock-free; Rebuild is
// serialized by a write mutex and never mutates a published snapshot.
type Index struct {
	state   atomic.Pointer[indexSnapshot]
	buildMu sync.Mutex
}

// NewIndex creates an empty index. Querying it returns no results, not an
// error.
func NewIndex() *Index {
	idx := &Index{}
	idx.state.Store(emptySnapshot)
	return idx
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int {
	return len(idx.state.Load().entries)
}

// Dimension returns the vector dimensionality of the current snapshot, 0
// when empty.
func (idx *Index) Dimension() int {
	return idx.state.Load().dimension
}

// Rebuild derives a fresh snapshot from the store and swaps it in. Records
// without an embedding are skipped. Rebuilding from an unchanged store is
// idempotent: the resulting entry order and scores are identical.
func (idx *Index) Rebuild(ctx context.Context, reader store.Reader) error {
	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()

	recs, err := reader.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("listing records for index build: %w", err)
	}

	snap := &indexSnapshot{entries: make([]Entry, 0, len(recs))}
	for i := range recs {
		rec := &recs[i]
		if len(rec.Embedding) == 0 {
			continue
		}
		if snap.dimension == 0 {
			snap.dimension = len(rec.Embedding)
		} else if len(rec.Embedding) != snap.dimension {
			return fmt.Errorf("record %q has dimension %d, index has %d", rec.ID, len(rec.Embedding), snap.dimension)
		}
		snap.entries = append(snap.entries, Entry{
			ID:         rec.ID,
			Vector:     normalize(rec.Embedding),
			Section:    rec.Section,
			Repository: rec.Repository,
		})
	}

	sort.Slice(snap.entries, func(i, j int) bool { return snap.entries[i].ID < snap.entries[j].ID })

	idx.state.Store(snap)
	return nil
}

// Search returns up to topK entries most similar to vector, ordered by
// descending cosine similarity, ties broken by ascending id. The filter is
// applied before ranking. An empty or unbuilt index yields an empty result.
func (idx *Index) Search(_ context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error) {
	snap := idx.state.Load()
	if len(snap.entries) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(vector) != snap.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vector), snap.dimension)
	}

	query := normalize(vector)

	results := make([]SearchResult, 0, len(snap.entries))
	for i := range snap.entries {
		e := &snap.entries[i]
		if !filter.Matches(e) {
			continue
		}
		results = append(results, SearchResult{ID: e.ID, Score: dot(query, e.Vector)})
	}

	// Entries are scanned in id order, so a stable sort on score alone
	// preserves the ascending-id tie break.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// normalize returns an L2-normalized copy, leaving the input untouched.
// Cosine similarity on normalized vectors reduces to a dot product.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i, f := range v {
		out[i] = f * inv
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

var _ Searcher = (*Index)(nil)
