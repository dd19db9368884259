package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/loomctl/loom/internal/llm"
	"github.com/loomctl/loom/internal/mapping"
	"github.com/loomctl/loom/internal/observability"
	"github.com/loomctl/loom/internal/retrieval"
	"github.com/loomctl/loom/internal/validate"
)

// Retriever is the slice of the retrieval service the engine needs.
type Retriever interface {
	RetrieveBySection(ctx context.Context, assets *mapping.Assets, q retrieval.SectionQuery) (*retrieval.SectionResult, error)
}

// Config bounds the migration loop.
type Config struct {
	// MaxGenerationRetries caps completion attempts per generation step.
	MaxGenerationRetries int
	// MaxRefinements caps how many rejected candidates get a repair round.
	MaxRefinements int
	// MaxConcurrent caps in-flight migrations across the process.
	MaxConcurrent int64
	// TokenBudget is the default retrieval budget for requests that do not
	// set one.
	TokenBudget int
}

// DefaultConfig returns the bounds used when the operator configures none.
func DefaultConfig() Config {
	return Config{
		MaxGenerationRetries: 3,
		MaxRefinements:       3,
		MaxConcurrent:        4,
		TokenBudget:          4000,
	}
}

// Engine runs migrations. It is safe for concurrent use.
type Engine struct {
	retriever Retriever
	provider  llm.Provider
	validator validate.Validator
	assets    *mapping.Assets
	cfg       Config
	sem       *semaphore.Weighted
	logger    *slog.Logger
}

// NewEngine wires a migration engine. Zero config fields fall back to
// DefaultConfig values.
func NewEngine(retriever Retriever, provider llm.Provider, validator validate.Validator, assets *mapping.Assets, cfg Config, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.MaxGenerationRetries <= 0 {
		cfg.MaxGenerationRetries = def.MaxGenerationRetries
	}
	if cfg.MaxRefinements <= 0 {
		cfg.MaxRefinements = def.MaxRefinements
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = def.TokenBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		retriever: retriever,
		provider:  provider,
		validator: validator,
		assets:    assets,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:    logger,
	}
}

// Run executes one migration to a terminal outcome. Bounded exhaustion is a
// failed Outcome, not an error; errors mean the request was malformed or the
// run could not proceed at all.
func (e *Engine) Run(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%w: empty code", ErrInvalidRequest)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring migration slot: %w", err)
	}
	defer e.sem.Release(1)

	outcome := &Outcome{Stage: StageRetrieving}
	ctx, endSpan := observability.TraceMigration(ctx, req.SourceRepo, req.TargetRepo)
	defer func() { endSpan(string(outcome.Status), outcome.Attempts) }()

	contextText := e.retrieveContext(ctx, req)
	outcome.ContextText = contextText

	basePrompt := BuildMigrationPrompt(e.assets, contextText, req.Code)
	prompt := basePrompt

	for attempt := 1; ; attempt++ {
		outcome.Attempts = attempt

		outcome.Stage = StageGenerating
		candidate, err := e.generate(ctx, prompt)
		if err != nil {
			outcome.Status = StatusFailed
			outcome.Stage = StageFailed
			outcome.Reason = err.Error()
			return outcome, nil
		}
		outcome.Candidate = candidate

		outcome.Stage = StageValidating
		verdict, err := e.validator.Validate(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("validating candidate: %w", err)
		}
		if verdict.Valid {
			outcome.Status = StatusMigrated
			outcome.Stage = StageDone
			outcome.Issues = nil
			return outcome, nil
		}

		outcome.Issues = verdict.Issues
		if attempt > e.cfg.MaxRefinements {
			outcome.Status = StatusFailed
			outcome.Stage = StageFailed
			outcome.Reason = ErrRefinementExhausted.Error()
			return outcome, nil
		}

		outcome.Stage = StageRefining
		e.logger.Info("candidate rejected, refining",
			"stage", string(StageRefining), "attempt", attempt, "issues", len(verdict.Issues))
		prompt = BuildRefinementPrompt(basePrompt, candidate, verdict.Feedback())
	}
}

// retrieveContext gathers per-component documentation. Retrieval failure
// degrades to generation without context rather than failing the run. The
// request budget caps the retrieved context, falling back to the engine's
// configured budget when the caller leaves it unset.
func (e *Engine) retrieveContext(ctx context.Context, req Request) string {
	budget := req.TokenBudget
	if budget <= 0 {
		budget = e.cfg.TokenBudget
	}
	res, err := e.retriever.RetrieveBySection(ctx, e.assets, retrieval.SectionQuery{
		Code:        req.Code,
		SourceRepo:  req.SourceRepo,
		TargetRepo:  req.TargetRepo,
		TokenBudget: budget,
	})
	if err != nil {
		e.logger.Warn("context retrieval failed, proceeding without context", "error", err)
		return ""
	}
	return res.PromptText()
}

// generate runs one completion with a bounded retry loop and sanitizes the
// output down to bare code.
func (e *Engine) generate(ctx context.Context, prompt *llm.Prompt) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxGenerationRetries; attempt++ {
		callCtx, endSpan := observability.TraceCompletion(ctx, e.provider.Name())
		resp, err := e.provider.Complete(callCtx, prompt, nil)
		endSpan(err)
		if err == nil {
			candidate := llm.SanitizeCompletion(resp.Content)
			if strings.TrimSpace(candidate) == "" {
				lastErr = fmt.Errorf("%w: empty completion", llm.ErrInvalidResponse)
				continue
			}
			return candidate, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) || ctx.Err() != nil {
			return "", fmt.Errorf("generation failed: %w", err)
		}
		e.logger.Warn("generation attempt failed", "attempt", attempt, "error", err)
	}
	return "", fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, e.cfg.MaxGenerationRetries, lastErr)
}
