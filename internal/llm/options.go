package llm

import "context"

// optionsProvider fills configured defaults into the completion options of
// every request. Explicit caller options always win.
type optionsProvider struct {
	Provider
	defaults RequestOptions
}

// WithOptions wraps p so completions carry the given defaults for any option
// the caller leaves unset. Empty defaults return p unchanged.
func WithOptions(p Provider, defaults RequestOptions) Provider {
	if p == nil {
		return nil
	}
	if defaults.MaxTokens == nil && defaults.Temperature == nil && defaults.TopP == nil && len(defaults.StopSeqs) == 0 {
		return p
	}
	return &optionsProvider{Provider: p, defaults: defaults}
}

func (o *optionsProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	merged := o.defaults
	if opts != nil {
		merged = *opts
		if merged.MaxTokens == nil {
			merged.MaxTokens = o.defaults.MaxTokens
		}
		if merged.Temperature == nil {
			merged.Temperature = o.defaults.Temperature
		}
		if merged.TopP == nil {
			merged.TopP = o.defaults.TopP
		}
		if len(merged.StopSeqs) == 0 {
			merged.StopSeqs = o.defaults.StopSeqs
		}
	}
	return o.Provider.Complete(ctx, prompt, &merged)
}
