package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/loomctl/loom/internal/llm"
	"github.com/loomctl/loom/internal/mapping"
	"github.com/loomctl/loom/internal/store"
	"github.com/loomctl/loom/internal/vector"
)

type stubEmbedder struct {
	vec      []float32
	failures int
	calls    int
}

func (s *stubEmbedder) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	return nil, errors.New("not implemented")
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("%w: transient", llm.ErrUnavailable)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func (s *stubEmbedder) Name() string { return "stub" }

type stubSearcher struct {
	hits   []vector.SearchResult
	err    error
	filter vector.Filter
}

func (s *stubSearcher) Search(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.SearchResult, error) {
	s.filter = filter
	if s.err != nil {
		return nil, s.err
	}
	if topK < len(s.hits) {
		return s.hits[:topK], nil
	}
	return s.hits, nil
}

func seedReader(t *testing.T, records ...store.Record) *store.MemoryStore {
	t.Helper()
	ms := store.NewMemoryStore()
	for i := range records {
		if err := ms.Put(context.Background(), &records[i]); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}
	return ms
}

func testService(emb *stubEmbedder, search *stubSearcher, reader store.Reader) *Service {
	return NewService(emb, search, reader, slog.New(slog.NewTextHandler(discard{}, nil)))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRetrieveEmptyQueryText(t *testing.T) {
	svc := testService(&stubEmbedder{vec: []float32{1}}, &stubSearcher{}, store.NewMemoryStore())
	_, err := svc.Retrieve(context.Background(), Query{Text: "   "})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("want ErrInvalidQuery, got %v", err)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	svc := testService(&stubEmbedder{vec: []float32{1}}, &stubSearcher{}, store.NewMemoryStore())
	res, err := svc.Retrieve(context.Background(), Query{Text: "alert usage"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 0 || res.TotalTokens != 0 {
		t.Fatalf("want empty result, got %+v", res)
	}
}

func TestRetrieveEmbedRetriesOnce(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1}, failures: 1}
	svc := testService(emb, &stubSearcher{}, store.NewMemoryStore())
	if _, err := svc.Retrieve(context.Background(), Query{Text: "q"}); err != nil {
		t.Fatalf("retry should have recovered: %v", err)
	}
	if emb.calls != 2 {
		t.Fatalf("want 2 embed calls, got %d", emb.calls)
	}
}

func TestRetrieveEmbedFailsAfterRetry(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1}, failures: 2}
	svc := testService(emb, &stubSearcher{}, store.NewMemoryStore())
	_, err := svc.Retrieve(context.Background(), Query{Text: "q"})
	if !errors.Is(err, ErrRetrievalFailed) {
		t.Fatalf("want ErrRetrievalFailed, got %v", err)
	}
	if emb.calls != 2 {
		t.Fatalf("want exactly 2 embed calls, got %d", emb.calls)
	}
}

func TestRetrieveBudgetStopsAtFirstOverflow(t *testing.T) {
	reader := seedReader(t,
		store.Record{ID: "a", Text: "ta", Section: store.SectionUsage, TokenCount: 40},
		store.Record{ID: "b", Text: "tb", Section: store.SectionUsage, TokenCount: 50},
		store.Record{ID: "c", Text: "tc", Section: store.SectionUsage, TokenCount: 5},
	)
	search := &stubSearcher{hits: []vector.SearchResult{
		{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}, {ID: "c", Score: 0.7},
	}}
	svc := testService(&stubEmbedder{vec: []float32{1}}, search, reader)

	res, err := svc.Retrieve(context.Background(), Query{Text: "q", TokenBudget: 60})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// b would push the total to 90, so assembly stops there; c is never
	// considered even though it would fit.
	if len(res.Records) != 1 || res.Records[0].ID != "a" {
		t.Fatalf("want only record a, got %+v", res.Records)
	}
	if res.TotalTokens != 40 {
		t.Fatalf("want total 40, got %d", res.TotalTokens)
	}
}

func TestRetrieveOversizedFirstCandidate(t *testing.T) {
	reader := seedReader(t,
		store.Record{ID: "a", Text: "ta", TokenCount: 500},
	)
	search := &stubSearcher{hits: []vector.SearchResult{{ID: "a", Score: 0.9}}}
	svc := testService(&stubEmbedder{vec: []float32{1}}, search, reader)

	res, err := svc.Retrieve(context.Background(), Query{Text: "q", TokenBudget: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 0 {
		t.Fatalf("want empty bundle, got %+v", res.Records)
	}
}

func TestRetrieveSkipsStaleIndexIDs(t *testing.T) {
	reader := seedReader(t,
		store.Record{ID: "live", Text: "t", TokenCount: 10},
	)
	search := &stubSearcher{hits: []vector.SearchResult{
		{ID: "gone", Score: 0.95}, {ID: "live", Score: 0.5},
	}}
	svc := testService(&stubEmbedder{vec: []float32{1}}, search, reader)

	res, err := svc.Retrieve(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].ID != "live" {
		t.Fatalf("want only live record, got %+v", res.Records)
	}
}

func TestRetrieveNoDuplicateIDs(t *testing.T) {
	reader := seedReader(t,
		store.Record{ID: "a", Text: "t", TokenCount: 10},
	)
	search := &stubSearcher{hits: []vector.SearchResult{
		{ID: "a", Score: 0.9}, {ID: "a", Score: 0.9},
	}}
	svc := testService(&stubEmbedder{vec: []float32{1}}, search, reader)

	res, err := svc.Retrieve(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("want deduplicated bundle, got %+v", res.Records)
	}
}

func TestRetrievePropagatesFilter(t *testing.T) {
	search := &stubSearcher{}
	svc := testService(&stubEmbedder{vec: []float32{1}}, search, store.NewMemoryStore())

	_, err := svc.Retrieve(context.Background(), Query{
		Text: "q", Section: store.SectionProps, Repository: "modus-v1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if search.filter.Section != store.SectionProps || search.filter.Repository != "modus-v1" {
		t.Fatalf("filter not propagated: %+v", search.filter)
	}
}

func TestRetrieveRespectsTopK(t *testing.T) {
	records := make([]store.Record, 6)
	hits := make([]vector.SearchResult, 6)
	for i := range records {
		id := fmt.Sprintf("r%d", i)
		records[i] = store.Record{ID: id, Text: id, TokenCount: 1}
		hits[i] = vector.SearchResult{ID: id, Score: float32(6-i) / 10}
	}
	reader := seedReader(t, records...)
	svc := testService(&stubEmbedder{vec: []float32{1}}, &stubSearcher{hits: hits}, reader)

	res, err := svc.Retrieve(context.Background(), Query{Text: "q", TopK: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 3 {
		t.Fatalf("want 3 records, got %d", len(res.Records))
	}
	for i, rec := range res.Records {
		if want := fmt.Sprintf("r%d", i); rec.ID != want {
			t.Fatalf("record %d: want %s, got %s", i, want, rec.ID)
		}
	}
}

func TestContextText(t *testing.T) {
	res := &Result{Records: []ScoredRecord{{Text: "one"}, {Text: "two"}}}
	if got := res.ContextText(); got != "one\n\ntwo" {
		t.Fatalf("unexpected context text: %q", got)
	}
}

func TestRetrieveBySection(t *testing.T) {
	reader := seedReader(t,
		store.Record{ID: "modus-v1/modus-alert/usage/000", Text: "v1 alert usage", Section: store.SectionUsage, Repository: "modus-v1", TokenCount: 5},
		store.Record{ID: "modus-v2/modus-wc-alert/usage/000", Text: "v2 alert usage", Section: store.SectionUsage, Repository: "modus-v2", TokenCount: 5},
		store.Record{ID: "modus-v1/modus-button/usage/000", Text: "v1 button usage", Section: store.SectionUsage, Repository: "modus-v1", TokenCount: 5},
	)
	search := &stubSearcher{hits: []vector.SearchResult{
		{ID: "modus-v1/modus-alert/usage/000", Score: 0.9},
		{ID: "modus-v2/modus-wc-alert/usage/000", Score: 0.85},
		{ID: "modus-v1/modus-button/usage/000", Score: 0.4},
	}}
	svc := testService(&stubEmbedder{vec: []float32{1}}, search, reader)

	assets := &mapping.Assets{
		SourcePrefix: "modus-",
		TargetPrefix: "modus-wc-",
		Components: map[string]mapping.ComponentMapping{
			"modus-alert": {Target: "modus-wc-alert"},
		},
		Plan: []string{"replace tags"},
	}

	res, err := svc.RetrieveBySection(context.Background(), assets, SectionQuery{
		Code:       `<div><modus-alert message="hi"></modus-alert></div>`,
		SourceRepo: "modus-v1",
		TargetRepo: "modus-v2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Tags) != 1 {
		t.Fatalf("want one tag context, got %d", len(res.Tags))
	}
	tc := res.Tags[0]
	if tc.SourceTag != "modus-alert" || tc.TargetTag != "modus-wc-alert" {
		t.Fatalf("unexpected tag pair: %+v", tc)
	}
	if len(tc.SourceRecords) == 0 || tc.SourceRecords[0].ID != "modus-v1/modus-alert/usage/000" {
		t.Fatalf("unexpected source records: %+v", tc.SourceRecords)
	}
	if len(tc.TargetRecords) == 0 || tc.TargetRecords[0].ID != "modus-v2/modus-wc-alert/usage/000" {
		t.Fatalf("unexpected target records: %+v", tc.TargetRecords)
	}

	text := res.PromptText()
	for _, want := range []string{"### SOURCE COMPONENT: modus-alert", "### TARGET COMPONENT: modus-wc-alert", "### MIGRATION PLAN", "[usage]\nv1 alert usage", "[usage]\nv2 alert usage"} {
		if !strings.Contains(text, want) {
			t.Fatalf("prompt text missing %q:\n%s", want, text)
		}
	}
}

func TestRetrieveBySectionTokenBudget(t *testing.T) {
	reader := seedReader(t,
		store.Record{ID: "modus-v1/modus-alert/usage/000", Text: "v1 alert usage", Section: store.SectionUsage, Repository: "modus-v1", TokenCount: 5},
		store.Record{ID: "modus-v1/modus-alert/props/000", Text: "v1 alert props", Section: store.SectionProps, Repository: "modus-v1", TokenCount: 5},
		store.Record{ID: "modus-v2/modus-wc-alert/usage/000", Text: "v2 alert usage", Section: store.SectionUsage, Repository: "modus-v2", TokenCount: 5},
	)
	search := &stubSearcher{hits: []vector.SearchResult{
		{ID: "modus-v1/modus-alert/usage/000", Score: 0.9},
		{ID: "modus-v1/modus-alert/props/000", Score: 0.88},
		{ID: "modus-v2/modus-wc-alert/usage/000", Score: 0.85},
	}}
	svc := testService(&stubEmbedder{vec: []float32{1}}, search, reader)
	assets := &mapping.Assets{
		SourcePrefix: "modus-",
		TargetPrefix: "modus-wc-",
		Components: map[string]mapping.ComponentMapping{
			"modus-alert": {Target: "modus-wc-alert"},
		},
	}
	query := SectionQuery{
		Code:       "<modus-alert></modus-alert>",
		SourceRepo: "modus-v1",
		TargetRepo: "modus-v2",
	}

	// A budget covering one record keeps the top source hit and leaves
	// nothing for the rest of the pair.
	query.TokenBudget = 5
	res, err := svc.RetrieveBySection(context.Background(), assets, query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := res.Tags[0]
	if len(tc.SourceRecords) != 1 || tc.SourceRecords[0].ID != "modus-v1/modus-alert/usage/000" {
		t.Fatalf("want single top source record under budget, got %+v", tc.SourceRecords)
	}
	if len(tc.TargetRecords) != 0 {
		t.Fatalf("spent budget should leave no target records, got %+v", tc.TargetRecords)
	}

	// A budget below every record's token count yields an empty bundle.
	query.TokenBudget = 1
	res, err = svc.RetrieveBySection(context.Background(), assets, query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc = res.Tags[0]
	if len(tc.SourceRecords) != 0 || len(tc.TargetRecords) != 0 {
		t.Fatalf("budget below any record should yield no records, got %+v", tc)
	}

	// No budget leaves the bundle unbounded.
	query.TokenBudget = 0
	res, err = svc.RetrieveBySection(context.Background(), assets, query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc = res.Tags[0]
	if len(tc.SourceRecords) != 2 || len(tc.TargetRecords) != 1 {
		t.Fatalf("unbounded query should keep all records, got %+v", tc)
	}
}

func TestRetrieveBySectionUnmappedTag(t *testing.T) {
	reader := seedReader(t,
		store.Record{ID: "modus-v1/modus-chip/usage/000", Text: "chip usage", Section: store.SectionUsage, Repository: "modus-v1", TokenCount: 5},
	)
	search := &stubSearcher{hits: []vector.SearchResult{
		{ID: "modus-v1/modus-chip/usage/000", Score: 0.8},
	}}
	svc := testService(&stubEmbedder{vec: []float32{1}}, search, reader)

	assets := &mapping.Assets{SourcePrefix: "modus-", Components: map[string]mapping.ComponentMapping{}}
	res, err := svc.RetrieveBySection(context.Background(), assets, SectionQuery{
		Code: "<modus-chip></modus-chip>", SourceRepo: "modus-v1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := res.Tags[0]
	if tc.TargetTag != "" || len(tc.TargetRecords) != 0 {
		t.Fatalf("unmapped tag should have no target side: %+v", tc)
	}
	if !strings.Contains(res.PromptText(), "(no mapping)") {
		t.Fatalf("prompt text should flag missing mapping:\n%s", res.PromptText())
	}
}

func TestRetrieveBySectionEmptyCode(t *testing.T) {
	svc := testService(&stubEmbedder{vec: []float32{1}}, &stubSearcher{}, store.NewMemoryStore())
	_, err := svc.RetrieveBySection(context.Background(), &mapping.Assets{}, SectionQuery{Code: " "})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("want ErrInvalidQuery, got %v", err)
	}
}
