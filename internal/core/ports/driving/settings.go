package driving

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current settings, validated.
	Get() (*domain.Settings, error)

	// Set updates one dot-notation key (e.g. "retrieval.top_k") and persists it.
	// The resulting settings must validate or nothing is written.
	Set(key, value string) error

	// Unset removes a key from the config file, restoring its default.
	Unset(key string) error

	// Keys lists the recognised setting keys.
	Keys() []string

	// Values returns the display value of every key, without validation,
	// so that an invalid configuration can still be inspected.
	Values() (map[string]string, error)

	// Validate checks the typed settings and their cross-field rules.
	Validate(settings *domain.Settings) error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings

	// ValidateEmbeddingConfig pings the configured embedding provider.
	ValidateEmbeddingConfig(ctx context.Context) error

	// ValidateLLMConfig pings the configured generation provider.
	ValidateLLMConfig(ctx context.Context) error

	// ListLLMModels returns the models the configured generation provider serves.
	ListLLMModels(ctx context.Context) ([]string, error)
}
