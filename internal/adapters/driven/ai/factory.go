// Package ai builds the embedding and generation adapters that settings
// select, and checks that they are reachable.
package ai

import (
	"fmt"

	localembed "github.com/custodia-labs/docqa/internal/adapters/driven/embedding/local"
	ollamaembed "github.com/custodia-labs/docqa/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/docqa/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/docqa/internal/adapters/driven/embedding/ratelimit"
	anthropicllm "github.com/custodia-labs/docqa/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/docqa/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/docqa/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// InitResult holds the services Init built.
type InitResult struct {
	EmbeddingService driven.EmbeddingService

	// LLMService is nil when generation is not configured.
	LLMService driven.LLMService

	// Warnings explain why generation is disabled, for the caller to report.
	Warnings []string
}

// Close releases both services.
func (r *InitResult) Close() {
	for _, c := range []interface{ Close() error }{r.EmbeddingService, r.LLMService} {
		if c != nil {
			_ = c.Close()
		}
	}
}

// Init builds the embedding and generation services. Embedding is
// mandatory, so a bad embedding configuration fails; a bad generation
// configuration only disables answering.
func Init(settings *domain.Settings) (*InitResult, error) {
	embedder, err := CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return nil, err
	}
	res := &InitResult{EmbeddingService: embedder}

	llm, err := CreateLLMService(&settings.LLM)
	switch {
	case err != nil:
		res.Warnings = append(res.Warnings, fmt.Sprintf("generation disabled: %v", err))
	case llm == nil:
		res.Warnings = append(res.Warnings, fmt.Sprintf("generation disabled: %s is not configured", settings.LLM.Provider))
	default:
		res.LLMService = llm
	}
	return res, nil
}

// CreateEmbeddingService builds the configured embedder. Remote embedders
// are wrapped in a rate limiter when RequestsPerSecond is set.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	switch {
	case settings == nil:
		return nil, fmt.Errorf("%w: no embedding settings", domain.ErrInvalidConfig)
	case !settings.Provider.Embeds():
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrInvalidConfig, settings.Provider)
	case !settings.IsConfigured():
		return nil, fmt.Errorf("%w: embedding provider %s needs an API key", domain.ErrInvalidConfig, settings.Provider)
	}

	var remote driven.EmbeddingService
	switch settings.Provider {
	case domain.AIProviderLocal:
		return localembed.NewEmbeddingService(settings.Dimensions), nil
	case domain.AIProviderOllama:
		remote = ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		})
	case domain.AIProviderOpenAI:
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
		}
		remote = svc
	}
	return ratelimit.Wrap(remote, ratelimit.Config{RequestsPerSecond: settings.RequestsPerSecond}), nil
}

// CreateLLMService builds the configured generator, or returns nil when
// the provider is unknown or lacks its API key.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.Config{BaseURL: settings.BaseURL, Model: settings.Model}), nil
	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.Config{
			APIKey: settings.APIKey, BaseURL: settings.BaseURL, Model: settings.Model,
		})
	case domain.AIProviderAnthropic:
		return anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey: settings.APIKey, BaseURL: settings.BaseURL, Model: settings.Model,
		})
	}
	return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
}
