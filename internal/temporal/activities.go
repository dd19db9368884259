package temporal

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomctl/loom/internal/llm"
	"github.com/loomctl/loom/internal/mapping"
	"github.com/loomctl/loom/internal/retrieval"
	"github.com/loomctl/loom/internal/validate"
	mig "github.com/loomctl/loom/internal/workflow"
)

// RetrievalResult is the serializable retrieval output passed to generation.
type RetrievalResult struct {
	ContextText string
	Plan        string
}

// GenerationInput carries everything the generation activity needs. Candidate
// and Feedback are set on refinement rounds only.
type GenerationInput struct {
	Code        string
	ContextText string
	Candidate   string
	Feedback    string
}

// GenerationResult holds the sanitized candidate.
type GenerationResult struct {
	Candidate string
}

// ValidationResult is the serializable validation verdict.
type ValidationResult struct {
	Valid  bool
	Issues []string
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Retriever mig.Retriever
	Provider  llm.Provider
	Validator validate.Validator
	Assets    *mapping.Assets

	// MaxGenerationRetries caps completion attempts per generation activity
	// (0 uses the default).
	MaxGenerationRetries int
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

func RetrieveActivity(ctx context.Context, input MigrationInput) (RetrievalResult, error) {
	res, err := deps.Retriever.RetrieveBySection(ctx, deps.Assets, retrieval.SectionQuery{
		Code:        input.Code,
		SourceRepo:  input.SourceRepo,
		TargetRepo:  input.TargetRepo,
		TokenBudget: input.TokenBudget,
	})
	if err != nil {
		return RetrievalResult{}, err
	}
	return RetrievalResult{ContextText: res.PromptText(), Plan: res.Plan}, nil
}

func GenerateActivity(ctx context.Context, input GenerationInput) (GenerationResult, error) {
	prompt := mig.BuildMigrationPrompt(deps.Assets, input.ContextText, input.Code)
	if input.Candidate != "" && input.Feedback != "" {
		prompt = mig.BuildRefinementPrompt(prompt, input.Candidate, input.Feedback)
	}

	retries := deps.MaxGenerationRetries
	if retries <= 0 {
		retries = 3
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		resp, err := deps.Provider.Complete(ctx, prompt, nil)
		if err == nil {
			candidate := llm.SanitizeCompletion(resp.Content)
			if strings.TrimSpace(candidate) == "" {
				lastErr = fmt.Errorf("%w: empty completion", llm.ErrInvalidResponse)
				continue
			}
			return GenerationResult{Candidate: candidate}, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) || ctx.Err() != nil {
			return GenerationResult{}, fmt.Errorf("generation failed: %w", err)
		}
	}
	return GenerationResult{}, fmt.Errorf("generation retries exhausted after %d attempts: %v", retries, lastErr)
}

func ValidateActivity(ctx context.Context, candidate string) (ValidationResult, error) {
	verdict, err := deps.Validator.Validate(ctx, candidate)
	if err != nil {
		return ValidationResult{}, err
	}
	return ValidationResult{Valid: verdict.Valid, Issues: verdict.Issues}, nil
}
