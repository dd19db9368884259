package temporal

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"
)

const defaultMaxRefinements = 3

// Terminal statuses reported in MigrationOutput.
const (
	StatusMigrated = "migrated"
	StatusFailed   = "failed"
)

// MigrationInput holds the workflow parameters.
type MigrationInput struct {
	Code       string
	SourceRepo string
	TargetRepo string

	// TokenBudget caps retrieved context tokens (0 uses the worker default).
	TokenBudget int
	// MaxRefinements caps repair rounds for rejected candidates (0 uses the
	// default).
	MaxRefinements int
}

// MigrationOutput holds the workflow result.
type MigrationOutput struct {
	Status      string
	Candidate   string
	Attempts    int
	Issues      []string
	Reason      string
	ContextText string
}

// ComponentMigrationWorkflow orchestrates retrieve, generate and validate
// activities with a bounded refinement loop. Exhausting the loop yields a
// failed output, not a workflow error.
func ComponentMigrationWorkflow(ctx workflow.Context, input MigrationInput) (*MigrationOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	maxRefinements := input.MaxRefinements
	if maxRefinements <= 0 {
		maxRefinements = defaultMaxRefinements
	}

	// Step 1: retrieval. Failure degrades to generation without context.
	var retrieved RetrievalResult
	if err := workflow.ExecuteActivity(ctx, RetrieveActivity, input).Get(ctx, &retrieved); err != nil {
		workflow.GetLogger(ctx).Warn("context retrieval failed, proceeding without context", "error", err)
		retrieved = RetrievalResult{}
	}

	// Step 2 + 3: generate and validate with feedback on each rejection.
	output := &MigrationOutput{ContextText: retrieved.ContextText}
	var candidate, feedback string

	for attempt := 1; ; attempt++ {
		output.Attempts = attempt

		var gen GenerationResult
		genInput := GenerationInput{
			Code:        input.Code,
			ContextText: retrieved.ContextText,
			Candidate:   candidate,
			Feedback:    feedback,
		}
		if err := workflow.ExecuteActivity(ctx, GenerateActivity, genInput).Get(ctx, &gen); err != nil {
			output.Status = StatusFailed
			output.Reason = err.Error()
			return output, nil
		}
		candidate = gen.Candidate
		output.Candidate = candidate

		var verdict ValidationResult
		if err := workflow.ExecuteActivity(ctx, ValidateActivity, candidate).Get(ctx, &verdict); err != nil {
			return nil, fmt.Errorf("validate attempt %d: %w", attempt, err)
		}
		if verdict.Valid {
			output.Status = StatusMigrated
			output.Issues = nil
			return output, nil
		}

		output.Issues = verdict.Issues
		if attempt > maxRefinements {
			output.Status = StatusFailed
			output.Reason = "refinement attempts exhausted"
			return output, nil
		}

		feedback = strings.Join(verdict.Issues, "\n")
	}
}
