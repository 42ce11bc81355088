package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// pingTimeout bounds a reachability check.
const pingTimeout = 5 * time.Second

// ConfigValidator builds a throwaway service from candidate settings and
// pings it.
type ConfigValidator struct{}

func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

func (v *ConfigValidator) ValidateEmbedding(ctx context.Context, settings *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return err
	}
	return ping(ctx, string(settings.Provider)+" embedding", svc)
}

func (v *ConfigValidator) ValidateLLM(ctx context.Context, settings *domain.LLMSettings) error {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return err
	}
	if svc == nil {
		return fmt.Errorf("%w: llm provider %q is not configured", domain.ErrInvalidConfig, settings.Provider)
	}
	return ping(ctx, string(settings.Provider)+" llm", svc)
}

// ListLLMModels asks the configured generation provider for its models.
func (v *ConfigValidator) ListLLMModels(ctx context.Context, settings *domain.LLMSettings) ([]string, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, fmt.Errorf("%w: llm provider %q is not configured", domain.ErrInvalidConfig, settings.Provider)
	}
	defer svc.Close()

	lister, ok := svc.(driven.ModelLister)
	if !ok {
		return nil, fmt.Errorf("%w: llm provider %q cannot list models", domain.ErrInvalidConfig, settings.Provider)
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return lister.Models(ctx)
}

type pinger interface {
	Ping(ctx context.Context) error
	Close() error
}

// ping checks svc within pingTimeout and closes it.
func ping(ctx context.Context, label string, svc pinger) error {
	defer svc.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return nil
}
