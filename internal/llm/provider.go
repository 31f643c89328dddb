package llm

import "context"

// Provider is the polymorphic interface every vendor adapter implements.
// It is the "canonical chat interface" of the spec: one shape across
// Anthropic, OpenAI, Google, and the Codex backend.
type Provider interface {
	// ProviderID returns a stable identifier, e.g. "anthropic".
	ProviderID() string

	// ListModels returns the provider's known models, ordered. May be a
	// static constant for vendors without a discovery endpoint.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Generate performs a non-streaming chat completion.
	Generate(ctx context.Context, req Request) (Response, error)

	// Stream performs a streaming chat completion, invoking onDelta for
	// each chunk in arrival order. The consumer may return an error (or
	// cancel ctx) to stop consumption early.
	Stream(ctx context.Context, req Request, onDelta func(StreamDelta) error) error

	// SupportsCapability reports whether this provider supports a given
	// capability, independent of the specific model requested.
	SupportsCapability(cap Capability) bool
}
