package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitConfig bounds gateway usage. The generation dependency is rate-
// and cost-constrained externally, so callers queue rather than fail when a
// window is exhausted.
type RateLimitConfig struct {
	// RequestsPerMinute limits API calls per minute (0 = unlimited).
	RequestsPerMinute int
	// TokensPerMinute limits total tokens per minute (0 = unlimited).
	TokensPerMinute int
	// BurstSize allows a temporary burst above the request rate.
	BurstSize int
}

// DefaultRateLimitConfig returns conservative defaults for metered APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 30,
		TokensPerMinute:   60000,
		BurstSize:         3,
	}
}

// RateLimitProvider wraps a provider with a token-bucket rate limiter.
type RateLimitProvider struct {
	inner  Provider
	config *RateLimitConfig

	mu            sync.Mutex
	requestTokens int
	tokenBudget   int
	lastRefill    time.Time
	windowStart   time.Time
	requestsInWin int
	tokensInWin   int
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &RateLimitProvider{
		inner:         inner,
		config:        config,
		requestTokens: burst,
		tokenBudget:   config.TokensPerMinute,
		lastRefill:    now,
		windowStart:   now,
	}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string { return r.inner.Name() }

// Complete blocks until the limiter admits the call, then delegates.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.waitForCapacity(ctx); err != nil {
		return nil, err
	}
	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.trackTokens(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Embed blocks until the limiter admits the call, then delegates.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.waitForCapacity(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) waitForCapacity(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		unlimited := r.config.RequestsPerMinute == 0 && r.config.TokensPerMinute == 0
		hasRequests := r.config.RequestsPerMinute == 0 || r.requestTokens > 0
		hasBudget := r.config.TokensPerMinute == 0 || r.tokenBudget > 0

		if unlimited || (hasRequests && hasBudget) {
			if !unlimited && r.config.RequestsPerMinute > 0 {
				r.requestTokens--
			}
			r.requestsInWin++
			r.mu.Unlock()
			return nil
		}

		wait := r.waitTime()
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// refill credits request tokens for elapsed time and resets the per-minute
// window. Caller holds r.mu.
func (r *RateLimitProvider) refill() {
	now := time.Now()

	if r.config.RequestsPerMinute > 0 {
		earned := int(now.Sub(r.lastRefill).Minutes() * float64(r.config.RequestsPerMinute))
		if earned > 0 {
			max := r.config.BurstSize
			if max <= 0 {
				max = 1
			}
			r.requestTokens += earned
			if r.requestTokens > max {
				r.requestTokens = max
			}
		}
	}

	if now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.requestsInWin = 0
		r.tokensInWin = 0
		r.tokenBudget = r.config.TokensPerMinute
	}

	r.lastRefill = now
}

func (r *RateLimitProvider) trackTokens(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokensInWin += n
	r.tokenBudget -= n
	if r.tokenBudget < 0 {
		r.tokenBudget = 0
	}
}

// waitTime estimates how long until capacity frees up. Caller holds r.mu.
func (r *RateLimitProvider) waitTime() time.Duration {
	if r.config.RequestsPerMinute > 0 && r.requestTokens <= 0 {
		perToken := time.Minute / time.Duration(r.config.RequestsPerMinute)
		return perToken
	}
	if r.config.TokensPerMinute > 0 && r.tokenBudget <= 0 {
		if remaining := time.Minute - time.Since(r.windowStart); remaining > 0 {
			return remaining
		}
	}
	return 100 * time.Millisecond
}

// Stats reports current window usage.
func (r *RateLimitProvider) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimitStats{
		RequestsInWindow:  r.requestsInWin,
		TokensInWindow:    r.tokensInWin,
		RemainingRequests: r.requestTokens,
		RemainingTokens:   r.tokenBudget,
		WindowStart:       r.windowStart,
	}
}

// RateLimitStats contains rate limiting statistics.
type RateLimitStats struct {
	RequestsInWindow  int
	TokensInWindow    int
	RemainingRequests int
	RemainingTokens   int
	WindowStart       time.Time
}

// WithRateLimit wraps a provider with rate limiting.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
