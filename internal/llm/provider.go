package llm

import "context"

// Provider is the interface all LLM backends must implement.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns embedding vectors for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "groq", "openai").
	Name() string
}

// Streamer is implemented by providers that support incremental token
// delivery. Callers should type-assert and fall back to Complete when the
// provider does not stream.
type Streamer interface {
	// CompleteStream sends a prompt and invokes fn for each content delta.
	// The returned Response carries the full concatenated content.
	CompleteStream(ctx context.Context, prompt *Prompt, opts *RequestOptions, fn func(delta string) error) (*Response, error)
}
