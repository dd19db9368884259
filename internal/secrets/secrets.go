// Package secrets resolves the credentials loom reads at startup: the LLM
// API key, the graph database password, and the Temporal API token. Loom
// never writes or rotates secrets; that belongs to deployment tooling, so
// the package is a read-side resolver over one backing source with the
// process environment as fallback.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Key names one of the secrets loom resolves.
type Key string

const (
	KeyLLMAPIKey     Key = "llm_api_key"
	KeyGraphPassword Key = "graph_password"
	KeyTemporalToken Key = "temporal_token"
)

// ErrNotFound reports that no source holds the requested secret.
var ErrNotFound = errors.New("secrets: not found")

// Source looks up a single secret. Implementations must be safe for
// concurrent use.
type Source interface {
	Lookup(ctx context.Context, key Key) (string, error)
	Name() string
}

// Resolver answers lookups from a primary source, then the process
// environment, and memoizes hits so startup does not query a remote backend
// once per config field.
type Resolver struct {
	source   Source
	fallback Source

	mu    sync.Mutex
	found map[Key]string
}

// NewResolver builds a resolver over source. A nil source resolves from the
// environment alone.
func NewResolver(source Source) *Resolver {
	env := EnvSource{}
	r := &Resolver{
		source: source,
		found:  make(map[Key]string),
	}
	if source == nil {
		r.source = env
	} else {
		r.fallback = env
	}
	return r
}

// Lookup resolves key through the primary source, then the environment.
func (r *Resolver) Lookup(ctx context.Context, key Key) (string, error) {
	r.mu.Lock()
	if val, ok := r.found[key]; ok {
		r.mu.Unlock()
		return val, nil
	}
	r.mu.Unlock()

	val, err := r.source.Lookup(ctx, key)
	if (err != nil || val == "") && r.fallback != nil {
		val, err = r.fallback.Lookup(ctx, key)
	}
	if err != nil || val == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	r.mu.Lock()
	r.found[key] = val
	r.mu.Unlock()
	return val, nil
}

// Fill sets *dst from the resolved secret when the config left it empty. A
// missing secret leaves *dst untouched; validation downstream decides
// whether that matters.
func (r *Resolver) Fill(ctx context.Context, key Key, dst *string) {
	if *dst != "" {
		return
	}
	if val, err := r.Lookup(ctx, key); err == nil {
		*dst = val
	}
}

// EnvSource reads secrets from the process environment. A Key maps to
// LOOM_<KEY> upper-cased, with the bare upper-cased name accepted as well.
type EnvSource struct {
	// Prefix overrides the LOOM_ variable prefix.
	Prefix string
}

func (s EnvSource) Name() string { return "env" }

func (s EnvSource) Lookup(_ context.Context, key Key) (string, error) {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "LOOM_"
	}
	name := strings.ToUpper(string(key))
	if val := os.Getenv(prefix + name); val != "" {
		return val, nil
	}
	if val := os.Getenv(name); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("%w: %s%s unset", ErrNotFound, prefix, name)
}
