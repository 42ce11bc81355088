// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// LLMService generates answers from prompts.
//
// Implementations classify their failures so the caller can decide what to retry:
//   - domain.ErrGenerationTimeout for deadline overruns
//   - domain.ErrGenerationUnavailable for unreachable or overloaded backends
//   - any other error is permanent
//
// Implementations may include:
//   - OpenAI (GPT-4o)
//   - Anthropic (Claude)
//   - Ollama (local models)
type LLMService interface {
	// Generate produces text completion from a prompt.
	// Streaming providers still return the single final answer.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the default model.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ModelLister is implemented by providers that can report the models
// they serve.
type ModelLister interface {
	Models(ctx context.Context) ([]string, error)
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// Model overrides the configured model for this call when non-empty.
	Model string

	// System is an optional system prompt.
	System string

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// Stream requests incremental output. OnToken, if set, receives each piece.
	Stream  bool
	OnToken func(token string)
}
