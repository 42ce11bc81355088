package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Environment variables consulted when no API key is configured.
//
//nolint:gosec // G101: These are variable names, not actual credentials.
const (
	envOpenAIKey    = "OPENAI_API_KEY"
	envAnthropicKey = "ANTHROPIC_API_KEY"
)

// settingFields maps each config key to the field it sets.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
var settingFields = map[string]func(s *domain.Settings) any{
	"project.name":                  func(s *domain.Settings) any { return &s.Project.Name },
	"project.description":           func(s *domain.Settings) any { return &s.Project.Description },
	"chunking.size":                 func(s *domain.Settings) any { return &s.Chunking.Size },
	"chunking.overlap":              func(s *domain.Settings) any { return &s.Chunking.Overlap },
	"chunking.tolerance":            func(s *domain.Settings) any { return &s.Chunking.Tolerance },
	"chunking.boundary":             func(s *domain.Settings) any { return &s.Chunking.Boundary },
	"retrieval.top_k":               func(s *domain.Settings) any { return &s.Retrieval.TopK },
	"retrieval.per_document_cap":    func(s *domain.Settings) any { return &s.Retrieval.PerDocumentCap },
	"retrieval.threshold":           func(s *domain.Settings) any { return &s.Retrieval.Threshold },
	"retrieval.usable_threshold":    func(s *domain.Settings) any { return &s.Retrieval.UsableThreshold },
	"retrieval.dedupe":              func(s *domain.Settings) any { return &s.Retrieval.DedupeContent },
	"context.budget":                func(s *domain.Settings) any { return &s.Context.Budget },
	"context.unit":                  func(s *domain.Settings) any { return &s.Context.Unit },
	"context.min_truncated":         func(s *domain.Settings) any { return &s.Context.MinTruncated },
	"generation.max_attempts":       func(s *domain.Settings) any { return &s.Generation.MaxAttempts },
	"generation.initial_backoff":    func(s *domain.Settings) any { return &s.Generation.InitialBackoff },
	"generation.max_backoff":        func(s *domain.Settings) any { return &s.Generation.MaxBackoff },
	"generation.timeout":            func(s *domain.Settings) any { return &s.Generation.Timeout },
	"history.max_chars":             func(s *domain.Settings) any { return &s.History.MaxChars },
	"history.max_turns":             func(s *domain.Settings) any { return &s.History.MaxTurns },
	"history.prompt_turns":          func(s *domain.Settings) any { return &s.History.PromptTurns },
	"history.idle_timeout":          func(s *domain.Settings) any { return &s.History.IdleTimeout },
	"embedding.provider":            func(s *domain.Settings) any { return &s.Embedding.Provider },
	"embedding.model":               func(s *domain.Settings) any { return &s.Embedding.Model },
	"embedding.base_url":            func(s *domain.Settings) any { return &s.Embedding.BaseURL },
	"embedding.api_key":             func(s *domain.Settings) any { return &s.Embedding.APIKey },
	"embedding.dimensions":          func(s *domain.Settings) any { return &s.Embedding.Dimensions },
	"embedding.requests_per_second": func(s *domain.Settings) any { return &s.Embedding.RequestsPerSecond },
	"embedding.concurrency":         func(s *domain.Settings) any { return &s.Embedding.Concurrency },
	"llm.provider":                  func(s *domain.Settings) any { return &s.LLM.Provider },
	"llm.model":                     func(s *domain.Settings) any { return &s.LLM.Model },
	"llm.base_url":                  func(s *domain.Settings) any { return &s.LLM.BaseURL },
	"llm.api_key":                   func(s *domain.Settings) any { return &s.LLM.APIKey },
	"llm.stream":                    func(s *domain.Settings) any { return &s.LLM.Stream },
	"storage.backend":               func(s *domain.Settings) any { return &s.Storage.Backend },
}

const keyRetrievalThreshold = "retrieval.threshold"

// SettingsService reads typed settings from the config store.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	validate    *validator.Validate
	getenv      func(string) string
}

// NewSettingsService creates a new settings service. aiValidator may be nil.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		getenv:      os.Getenv,
	}
}

// Get builds settings from defaults, the config file and the environment,
// and validates the result.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings, err := s.load()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *SettingsService) load() (*domain.Settings, error) {
	settings := domain.DefaultSettings()

	for key, field := range settingFields {
		val, ok := s.configStore.Get(key)
		if !ok {
			continue
		}
		if err := assign(field(&settings), val); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidConfig, key, err)
		}
	}
	if _, ok := s.configStore.Get(keyRetrievalThreshold); ok {
		settings.Retrieval.HasThreshold = true
	}

	s.applyProviderDefaults(&settings)
	return &settings, nil
}

// applyProviderDefaults fills in models, endpoints and API keys the config
// leaves empty.
func (s *SettingsService) applyProviderDefaults(settings *domain.Settings) {
	if _, ok := s.configStore.Get("embedding.model"); !ok || settings.Embedding.Model == "" {
		if m, ok := domain.DefaultEmbeddingModels()[settings.Embedding.Provider]; ok {
			settings.Embedding.Model = m
		}
	}
	if _, ok := s.configStore.Get("llm.model"); !ok || settings.LLM.Model == "" {
		if m, ok := domain.DefaultLLMModels()[settings.LLM.Provider]; ok {
			settings.LLM.Model = m
		}
	}

	if settings.Embedding.Provider == domain.AIProviderOllama && settings.Embedding.BaseURL == "" {
		settings.Embedding.BaseURL = "http://localhost:11434"
	}
	if settings.LLM.Provider != domain.AIProviderOllama {
		if _, ok := s.configStore.Get("llm.base_url"); !ok {
			settings.LLM.BaseURL = ""
		}
	}

	if settings.Embedding.APIKey == "" && settings.Embedding.Provider == domain.AIProviderOpenAI {
		settings.Embedding.APIKey = s.getenv(envOpenAIKey)
	}
	if settings.LLM.APIKey == "" {
		switch settings.LLM.Provider {
		case domain.AIProviderOpenAI:
			settings.LLM.APIKey = s.getenv(envOpenAIKey)
		case domain.AIProviderAnthropic:
			settings.LLM.APIKey = s.getenv(envAnthropicKey)
		}
	}
}

// Set updates one key. The value is parsed for the key's type and the whole
// configuration must still validate before anything is persisted.
func (s *SettingsService) Set(key, value string) error {
	field, ok := settingFields[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidConfig, key)
	}

	settings, err := s.load()
	if err != nil {
		return err
	}
	ptr := field(settings)
	if err := assign(ptr, value); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidConfig, key, err)
	}
	if key == keyRetrievalThreshold {
		settings.Retrieval.HasThreshold = true
	}
	if err := s.Validate(settings); err != nil {
		return err
	}

	return s.configStore.Set(key, storedValue(ptr))
}

// Unset removes key from the config file so its default applies again.
func (s *SettingsService) Unset(key string) error {
	if _, ok := settingFields[key]; !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidConfig, key)
	}
	return s.configStore.Delete(key)
}

// Keys lists the recognised setting keys in order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(settingFields))
	for k := range settingFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the display value of every key in the unvalidated settings.
func (s *SettingsService) Values() (map[string]string, error) {
	settings, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(settingFields))
	for key, field := range settingFields {
		out[key] = fmt.Sprint(storedValue(field(settings)))
	}
	return out, nil
}

// Value returns the display value of key in settings.
func Value(settings *domain.Settings, key string) (string, bool) {
	field, ok := settingFields[key]
	if !ok {
		return "", false
	}
	return fmt.Sprint(storedValue(field(settings))), true
}

// Validate checks field ranges and cross-field rules.
func (s *SettingsService) Validate(settings *domain.Settings) error {
	if err := s.validate.Struct(settings); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s fails %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}

	var problems []string
	c := settings.Chunking
	if c.Overlap >= c.Size {
		problems = append(problems, fmt.Sprintf("chunking.overlap (%d) must be smaller than chunking.size (%d)", c.Overlap, c.Size))
	} else if c.Overlap+c.Tolerance >= c.Size {
		problems = append(problems, fmt.Sprintf(
			"chunking.overlap + chunking.tolerance (%d) must be smaller than chunking.size (%d)", c.Overlap+c.Tolerance, c.Size))
	}
	if settings.Context.MinTruncated > settings.Context.Budget {
		problems = append(problems, "context.min_truncated exceeds context.budget")
	}
	g := settings.Generation
	if g.MaxBackoff > 0 && g.MaxBackoff < g.InitialBackoff {
		problems = append(problems, "generation.max_backoff is smaller than generation.initial_backoff")
	}
	if !settings.Embedding.IsConfigured() {
		problems = append(problems, fmt.Sprintf("embedding provider %s is not configured (API key missing?)", settings.Embedding.Provider))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig(ctx context.Context) error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(ctx, &settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig(ctx context.Context) error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(ctx, &settings.LLM)
}

// ListLLMModels returns the models the configured generation provider serves.
func (s *SettingsService) ListLLMModels(ctx context.Context) ([]string, error) {
	if s.aiValidator == nil {
		return nil, errors.New("provider checks not configured")
	}
	settings, err := s.Get()
	if err != nil {
		return nil, err
	}
	return s.aiValidator.ListLLMModels(ctx, &settings.LLM)
}

// assign converts v, a TOML value or a command-line string, into *ptr.
//
//nolint:gocyclo // One case per supported field type.
func assign(ptr, v any) error {
	str, isString := v.(string)

	switch p := ptr.(type) {
	case *string:
		if !isString {
			return fmt.Errorf("want string, got %T", v)
		}
		*p = str
	case *domain.Boundary:
		if !isString {
			return fmt.Errorf("want string, got %T", v)
		}
		*p = domain.Boundary(str)
	case *domain.BudgetUnit:
		if !isString {
			return fmt.Errorf("want string, got %T", v)
		}
		*p = domain.BudgetUnit(str)
	case *domain.AIProvider:
		if !isString {
			return fmt.Errorf("want string, got %T", v)
		}
		*p = domain.AIProvider(str)
	case *domain.StorageBackend:
		if !isString {
			return fmt.Errorf("want string, got %T", v)
		}
		*p = domain.StorageBackend(str)
	case *int:
		switch n := v.(type) {
		case int64:
			*p = int(n)
		case int:
			*p = n
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return fmt.Errorf("want integer: %w", err)
			}
			*p = i
		default:
			return fmt.Errorf("want integer, got %T", v)
		}
	case *float64:
		switch n := v.(type) {
		case float64:
			*p = n
		case int64:
			*p = float64(n)
		case int:
			*p = float64(n)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return fmt.Errorf("want number: %w", err)
			}
			*p = f
		default:
			return fmt.Errorf("want number, got %T", v)
		}
	case *bool:
		switch b := v.(type) {
		case bool:
			*p = b
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return fmt.Errorf("want true or false: %w", err)
			}
			*p = parsed
		default:
			return fmt.Errorf("want boolean, got %T", v)
		}
	case *time.Duration:
		if !isString {
			return fmt.Errorf("want duration string like \"500ms\", got %T", v)
		}
		d, err := time.ParseDuration(strings.TrimSpace(str))
		if err != nil {
			return err
		}
		*p = d
	default:
		return fmt.Errorf("unsupported setting type %T", ptr)
	}
	return nil
}

// storedValue returns the TOML representation of *ptr.
func storedValue(ptr any) any {
	switch p := ptr.(type) {
	case *string:
		return *p
	case *domain.Boundary:
		return string(*p)
	case *domain.BudgetUnit:
		return string(*p)
	case *domain.AIProvider:
		return string(*p)
	case *domain.StorageBackend:
		return string(*p)
	case *int:
		return int64(*p)
	case *float64:
		return *p
	case *bool:
		return *p
	case *time.Duration:
		return p.String()
	default:
		return nil
	}
}
