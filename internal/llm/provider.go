// Package llm abstracts the embedding/generation gateway: any backend that
// can turn text into vectors and prompts into code.
package llm

import "context"

// Provider is the interface all gateway backends must implement.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns embedding vectors for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "azure", "openai").
	Name() string
}
