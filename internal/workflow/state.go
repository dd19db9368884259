// Package workflow drives one component migration through a bounded
// retrieve, generate, validate, refine loop.
package workflow

import "errors"

// Stage identifies where in the pipeline a migration currently is.
type Stage string

const (
	StageRetrieving Stage = "retrieving"
	StageGenerating Stage = "generating"
	StageValidating Stage = "validating"
	StageRefining   Stage = "refining"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Status is the terminal classification of a migration run.
type Status string

const (
	StatusMigrated Status = "migrated"
	StatusFailed   Status = "failed"
)

var (
	// ErrRetriesExhausted marks a generation call that failed on every
	// allowed attempt.
	ErrRetriesExhausted = errors.New("workflow: generation retries exhausted")
	// ErrRefinementExhausted marks a candidate that never passed validation
	// within the refinement budget.
	ErrRefinementExhausted = errors.New("workflow: refinement attempts exhausted")
	// ErrInvalidRequest marks malformed caller input.
	ErrInvalidRequest = errors.New("workflow: invalid request")
)

// Request describes one migration job.
type Request struct {
	// Code is the source snippet to migrate.
	Code string `json:"code"`
	// SourceRepo and TargetRepo select which library's records feed
	// retrieval, e.g. "modus-v1" and "modus-v2".
	SourceRepo string `json:"source_repo,omitempty"`
	TargetRepo string `json:"target_repo,omitempty"`
	// TokenBudget caps the retrieved context. Zero uses the engine default.
	TokenBudget int `json:"token_budget,omitempty"`
}

// Outcome is the terminal result of a migration run. Failed runs still carry
// the last candidate so callers can inspect what the model produced.
type Outcome struct {
	Status    Status `json:"status"`
	Stage     Stage  `json:"stage"`
	Candidate string `json:"candidate,omitempty"`
	// Attempts counts validation rounds: the initial candidate plus each
	// refinement.
	Attempts int      `json:"attempts"`
	Reason   string   `json:"reason,omitempty"`
	Issues   []string `json:"issues,omitempty"`
	// ContextText is the retrieved context the generation prompt used.
	// Empty when retrieval degraded.
	ContextText string `json:"context_text,omitempty"`
}
