// Package retrieval turns caller queries into token-budget-constrained
// bundles of context records, ranked by similarity.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomctl/loom/internal/llm"
	"github.com/loomctl/loom/internal/observability"
	"github.com/loomctl/loom/internal/store"
	"github.com/loomctl/loom/internal/vector"
)

const (
	// DefaultTopK is the result count when a query does not specify one.
	DefaultTopK = 5
	// candidateFanout widens the index query beyond the requested count so
	// budget-driven pruning still has enough candidates to fill a bundle.
	candidateFanout = 3
)

// Query is one retrieval request. Zero TokenBudget means unbounded.
type Query struct {
	Text        string
	Section     store.Section
	Repository  string
	TopK        int
	TokenBudget int
}

// ScoredRecord is one retrieved record with its similarity score.
type ScoredRecord struct {
	ID         string        `json:"id"`
	Score      float32       `json:"score"`
	Text       string        `json:"text"`
	Section    store.Section `json:"section"`
	Repository string        `json:"repository"`
	TokenCount int           `json:"token_count"`
}

// Result is an ordered, deduplicated bundle whose total token count never
// exceeds the query's budget.
type Result struct {
	Records     []ScoredRecord `json:"records"`
	TotalTokens int            `json:"total_tokens"`
}

// ContextText concatenates record texts for prompt assembly.
func (r *Result) ContextText() string {
	parts := make([]string, len(r.Records))
	for i, rec := range r.Records {
		parts[i] = rec.Text
	}
	return strings.Join(parts, "\n\n")
}

// Service resolves queries against the vector index and the context store.
type Service struct {
	provider llm.Provider
	searcher vector.Searcher
	reader   store.Reader
	logger   *slog.Logger
}

// NewService creates a retrieval service.
func NewService(provider llm.Provider, searcher vector.Searcher, reader store.Reader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, searcher: searcher, reader: reader, logger: logger}
}

// Retrieve embeds the query text, ranks candidates, and assembles a bundle
// within the token budget. An empty index or no matches yields an empty
// result, not an error.
func (s *Service) Retrieve(ctx context.Context, q Query) (*Result, error) {
	ctx, endSpan := observability.TraceRetrieval(ctx, "tokens")
	res, err := s.retrieve(ctx, q)
	if err != nil {
		endSpan(0, 0, err)
		return nil, err
	}
	endSpan(len(res.Records), res.TotalTokens, nil)
	return res, nil
}

func (s *Service) retrieve(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: empty query text", ErrInvalidQuery)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryVec, err := s.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	filter := vector.Filter{Section: q.Section, Repository: q.Repository}
	hits, err := s.searcher.Search(ctx, queryVec, topK*candidateFanout, filter)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	return s.assemble(ctx, hits, topK, q.TokenBudget)
}

// embedQuery calls the gateway with a single retry on transient failure.
// Retrieval is cheap to re-issue, so it does not get the generation path's
// full backoff schedule.
func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.provider.Embed(ctx, []string{text})
	if err != nil && llm.IsRetryable(err) && ctx.Err() == nil {
		s.logger.Warn("query embedding failed, retrying once", "error", err)
		vecs, err = s.provider.Embed(ctx, []string{text})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: gateway returned no embedding", ErrRetrievalFailed)
	}
	return vecs[0], nil
}

// assemble resolves hits against the store and greedily accumulates whole
// records in descending score order until the budget would be exceeded.
// Records are never truncated: each is included whole or not at all.
func (s *Service) assemble(ctx context.Context, hits []vector.SearchResult, topK, budget int) (*Result, error) {
	result := &Result{}
	seen := make(map[string]bool, len(hits))

	for _, hit := range hits {
		if len(result.Records) >= topK {
			break
		}
		if seen[hit.ID] {
			continue
		}
		seen[hit.ID] = true

		rec, err := s.reader.Get(ctx, hit.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Stale index reference; the store is authoritative.
			s.logger.Debug("skipping stale index reference", "id", hit.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving record %q: %w", hit.ID, err)
		}

		if budget > 0 && result.TotalTokens+rec.TokenCount > budget {
			break
		}

		result.Records = append(result.Records, ScoredRecord{
			ID:         rec.ID,
			Score:      hit.Score,
			Text:       rec.Text,
			Section:    rec.Section,
			Repository: rec.Repository,
			TokenCount: rec.TokenCount,
		})
		result.TotalTokens += rec.TokenCount
	}

	return result, nil
}
