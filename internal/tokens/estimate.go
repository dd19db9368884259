package tokens

import "unicode/utf8"

// estimatedCharsPerToken approximates BPE density for mixed code/prose.
const estimatedCharsPerToken = 4

// Estimator is a deterministic, dependency-free Counter used when no BPE
// encoding is available (tests, offline ingestion). It approximates one
// token per four characters, never returning 0 for non-empty text.
type Estimator struct{}

// NewEstimator returns the heuristic counter.
func NewEstimator() Estimator { return Estimator{} }

// Count implements Counter.
func (Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / estimatedCharsPerToken
	if n == 0 {
		return 1
	}
	return n
}
