package driven

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// AIConfigValidator checks provider settings by talking to the provider.
// Used by `docqa settings check` before a long ingestion run.
type AIConfigValidator interface {
	// ValidateEmbedding builds the embedding provider and pings it.
	ValidateEmbedding(ctx context.Context, config *domain.EmbeddingSettings) error

	// ValidateLLM builds the generation provider and pings it.
	ValidateLLM(ctx context.Context, config *domain.LLMSettings) error

	// ListLLMModels builds the generation provider and asks it which
	// models it serves.
	ListLLMModels(ctx context.Context, config *domain.LLMSettings) ([]string, error)
}
