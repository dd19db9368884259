package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/loomctl/loom/internal/llm"
	"github.com/loomctl/loom/internal/mapping"
	"github.com/loomctl/loom/internal/retrieval"
	"github.com/loomctl/loom/internal/validate"
)

type scriptStep struct {
	content string
	err     error
}

type scriptProvider struct {
	steps   []scriptStep
	calls   int
	prompts []*llm.Prompt
}

func (p *scriptProvider) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	p.prompts = append(p.prompts, prompt)
	if p.calls >= len(p.steps) {
		return nil, errors.New("script exhausted")
	}
	step := p.steps[p.calls]
	p.calls++
	if step.err != nil {
		return nil, step.err
	}
	return &llm.Response{Content: step.content}, nil
}

func (p *scriptProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (p *scriptProvider) Name() string { return "script" }

type stubRetriever struct {
	result    *retrieval.SectionResult
	err       error
	lastQuery retrieval.SectionQuery
}

func (r *stubRetriever) RetrieveBySection(ctx context.Context, assets *mapping.Assets, q retrieval.SectionQuery) (*retrieval.SectionResult, error) {
	r.lastQuery = q
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &retrieval.SectionResult{}, nil
}

// validatorAlwaysValid accepts every candidate.
type validatorAlwaysValid struct{}

func (validatorAlwaysValid) Validate(ctx context.Context, code string) (*validate.Verdict, error) {
	return &validate.Verdict{Valid: true}, nil
}

// sequenceValidator replays a scripted sequence of verdicts.
type sequenceValidator struct {
	verdicts []bool
	feedback string
	calls    int
}

func (v *sequenceValidator) Validate(ctx context.Context, code string) (*validate.Verdict, error) {
	ok := false
	if v.calls < len(v.verdicts) {
		ok = v.verdicts[v.calls]
	}
	v.calls++
	if ok {
		return &validate.Verdict{Valid: true}, nil
	}
	return &validate.Verdict{Issues: []string{v.feedback}}, nil
}

func testAssets() *mapping.Assets {
	return &mapping.Assets{
		SourcePrefix: "modus-",
		TargetPrefix: "modus-wc-",
		Components: map[string]mapping.ComponentMapping{
			"modus-alert": {Target: "modus-wc-alert"},
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// recordingHandler captures log records so tests can observe pipeline
// progress reported through the logger.
type recordingHandler struct {
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestRunStageProgression(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{
		{content: "<modus-alert></modus-alert>"},
		{content: "<modus-wc-alert></modus-wc-alert>"},
	}}
	validator := &sequenceValidator{verdicts: []bool{false, true}, feedback: "replace the tag"}
	handler := &recordingHandler{}
	eng := NewEngine(&stubRetriever{}, provider, validator, testAssets(),
		Config{MaxRefinements: 3}, slog.New(handler))

	out, err := eng.Run(context.Background(), Request{Code: "<modus-alert></modus-alert>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stage != StageDone {
		t.Fatalf("want terminal stage %q, got %q", StageDone, out.Stage)
	}

	// The rejected first candidate must have passed through the refining
	// stage, reported via the log.
	var sawRefining bool
	for _, rec := range handler.records {
		rec.Attrs(func(a slog.Attr) bool {
			if a.Key == "stage" && a.Value.String() == string(StageRefining) {
				sawRefining = true
				return false
			}
			return true
		})
	}
	if !sawRefining {
		t.Fatal("refining stage never reported")
	}
}

func TestRunPassesTokenBudgetToRetrieval(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{
		{content: "<modus-wc-alert></modus-wc-alert>"},
	}}
	retriever := &stubRetriever{}
	eng := NewEngine(retriever, provider, validatorAlwaysValid{}, testAssets(), Config{}, quietLogger())

	if _, err := eng.Run(context.Background(), Request{Code: "<modus-alert></modus-alert>", TokenBudget: 123}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retriever.lastQuery.TokenBudget != 123 {
		t.Fatalf("want request budget 123 in retrieval query, got %d", retriever.lastQuery.TokenBudget)
	}
}

func TestRunDefaultsTokenBudgetFromConfig(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{
		{content: "<modus-wc-alert></modus-wc-alert>"},
	}}
	retriever := &stubRetriever{}
	eng := NewEngine(retriever, provider, validatorAlwaysValid{}, testAssets(), Config{}, quietLogger())

	if _, err := eng.Run(context.Background(), Request{Code: "<modus-alert></modus-alert>"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retriever.lastQuery.TokenBudget != DefaultConfig().TokenBudget {
		t.Fatalf("want config default budget %d, got %d", DefaultConfig().TokenBudget, retriever.lastQuery.TokenBudget)
	}
}

func TestRunEmptyCode(t *testing.T) {
	eng := NewEngine(&stubRetriever{}, &scriptProvider{}, validatorAlwaysValid{}, testAssets(), Config{}, quietLogger())
	_, err := eng.Run(context.Background(), Request{Code: "  "})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}
}

func TestRunFirstCandidateValid(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{
		{content: "<modus-wc-alert></modus-wc-alert>"},
	}}
	eng := NewEngine(&stubRetriever{}, provider, validatorAlwaysValid{}, testAssets(), Config{}, quietLogger())

	out, err := eng.Run(context.Background(), Request{Code: "<modus-alert></modus-alert>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusMigrated || out.Stage != StageDone {
		t.Fatalf("want migrated/done, got %s/%s", out.Status, out.Stage)
	}
	if out.Attempts != 1 {
		t.Fatalf("want 1 attempt, got %d", out.Attempts)
	}
	if out.Candidate != "<modus-wc-alert></modus-wc-alert>" {
		t.Fatalf("unexpected candidate: %q", out.Candidate)
	}
}

func TestRunGenerationRetriesExhausted(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{
		{err: llm.ErrUnavailable},
		{err: llm.ErrUnavailable},
		{err: llm.ErrUnavailable},
	}}
	eng := NewEngine(&stubRetriever{}, provider, validatorAlwaysValid{}, testAssets(),
		Config{MaxGenerationRetries: 3}, quietLogger())

	out, err := eng.Run(context.Background(), Request{Code: "<modus-alert/>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusFailed || out.Stage != StageFailed {
		t.Fatalf("want failed outcome, got %s/%s", out.Status, out.Stage)
	}
	if !strings.Contains(out.Reason, "retries exhausted") {
		t.Fatalf("reason should mention retry exhaustion: %q", out.Reason)
	}
	if provider.calls != 3 {
		t.Fatalf("want 3 completion calls, got %d", provider.calls)
	}
}

func TestRunNonRetryableGenerationError(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{
		{err: errors.New("model not found")},
	}}
	eng := NewEngine(&stubRetriever{}, provider, validatorAlwaysValid{}, testAssets(), Config{}, quietLogger())

	out, err := eng.Run(context.Background(), Request{Code: "<modus-alert/>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusFailed {
		t.Fatalf("want failed outcome, got %s", out.Status)
	}
	if provider.calls != 1 {
		t.Fatalf("non-retryable error should stop at 1 call, got %d", provider.calls)
	}
}

func TestRunEmptyCompletionRetried(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{
		{content: "   "},
		{content: "<modus-wc-alert/>"},
	}}
	eng := NewEngine(&stubRetriever{}, provider, validatorAlwaysValid{}, testAssets(), Config{}, quietLogger())

	out, err := eng.Run(context.Background(), Request{Code: "<modus-alert/>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusMigrated {
		t.Fatalf("want migrated, got %s (%s)", out.Status, out.Reason)
	}
	if provider.calls != 2 {
		t.Fatalf("want 2 completion calls, got %d", provider.calls)
	}
}

func TestRunRefinementRecovers(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{
		{content: "bad one"},
		{content: "bad two"},
		{content: "good"},
	}}
	validator := &sequenceValidator{verdicts: []bool{false, false, true}, feedback: "replace <modus-alert>"}
	eng := NewEngine(&stubRetriever{}, provider, validator, testAssets(),
		Config{MaxRefinements: 3}, quietLogger())

	out, err := eng.Run(context.Background(), Request{Code: "<modus-alert/>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusMigrated {
		t.Fatalf("want migrated, got %s (%s)", out.Status, out.Reason)
	}
	if out.Attempts != 3 {
		t.Fatalf("want 3 attempts, got %d", out.Attempts)
	}
	if out.Candidate != "good" {
		t.Fatalf("unexpected candidate: %q", out.Candidate)
	}
	// The refinement prompt must carry the rejected candidate and feedback.
	last := provider.prompts[len(provider.prompts)-1]
	joined := promptText(last)
	for _, want := range []string{"bad two", "replace <modus-alert>"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("refinement prompt missing %q", want)
		}
	}
}

func TestRunRefinementExhausted(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{
		{content: "bad"}, {content: "bad"}, {content: "bad"},
	}}
	validator := &sequenceValidator{verdicts: []bool{false, false, false}, feedback: "still wrong"}
	eng := NewEngine(&stubRetriever{}, provider, validator, testAssets(),
		Config{MaxRefinements: 2}, quietLogger())

	out, err := eng.Run(context.Background(), Request{Code: "<modus-alert/>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusFailed {
		t.Fatalf("want failed, got %s", out.Status)
	}
	if out.Attempts != 3 {
		t.Fatalf("want 3 validation rounds, got %d", out.Attempts)
	}
	if !strings.Contains(out.Reason, "refinement") {
		t.Fatalf("reason should mention refinement: %q", out.Reason)
	}
	if out.Candidate != "bad" {
		t.Fatalf("failed outcome should keep the last candidate, got %q", out.Candidate)
	}
	if len(out.Issues) == 0 {
		t.Fatal("failed outcome should keep the last issues")
	}
}

func TestRunRetrievalDegrades(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{{content: "ok"}}}
	retriever := &stubRetriever{err: errors.New("index offline")}
	eng := NewEngine(retriever, provider, validatorAlwaysValid{}, testAssets(), Config{}, quietLogger())

	out, err := eng.Run(context.Background(), Request{Code: "<modus-alert/>"})
	if err != nil {
		t.Fatalf("retrieval failure should degrade, got error: %v", err)
	}
	if out.Status != StatusMigrated {
		t.Fatalf("want migrated, got %s (%s)", out.Status, out.Reason)
	}
	if out.ContextText != "" {
		t.Fatalf("degraded run should carry no context, got %q", out.ContextText)
	}
}

func TestRunFencedCompletionSanitized(t *testing.T) {
	provider := &scriptProvider{steps: []scriptStep{
		{content: "```html\n<modus-wc-alert/>\n```"},
	}}
	eng := NewEngine(&stubRetriever{}, provider, validatorAlwaysValid{}, testAssets(), Config{}, quietLogger())

	out, err := eng.Run(context.Background(), Request{Code: "<modus-alert/>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out.Candidate, "```") {
		t.Fatalf("candidate should be stripped of fences: %q", out.Candidate)
	}
}

func promptText(p *llm.Prompt) string {
	var b strings.Builder
	b.WriteString(p.SystemPrompt)
	for _, m := range p.Messages {
		fmt.Fprintf(&b, "\n%s", m.Content)
	}
	return b.String()
}
