package llm

import "context"

// GenerationError wraps any failure of the text-generation collaborator,
// including timeouts and empty completions. Callers absorb it into a
// per-method fallback; it is never surfaced to the end caller.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "llm generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Options tune a single generation call. Zero values fall back to the
// provider's configured defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
	// Persona is an optional system prompt prepended to the request.
	Persona string
}

// Provider is the text-generation collaborator.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}
