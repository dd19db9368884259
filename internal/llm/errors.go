package llm

import "errors"

// Gateway failure classes. Providers wrap their transport errors in these so
// retry policy can be decided without string matching where possible.
var (
	// ErrUnavailable marks transient upstream failures (5xx, connection
	// resets, timeouts). Retryable.
	ErrUnavailable = errors.New("llm: gateway unavailable")
	// ErrRateLimited marks 429-style throttling. Retryable with backoff.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrInvalidResponse marks structurally unusable gateway output
	// (unparseable body, empty completion). Retryable, the next attempt may
	// produce a usable response.
	ErrInvalidResponse = errors.New("llm: invalid response")
	// ErrUnauthorized marks auth and permission failures (401, 403, bad API
	// key). Never retryable; repeating the call cannot fix credentials.
	ErrUnauthorized = errors.New("llm: unauthorized")
)
