package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docqa/internal/core/domain"
)

type stubAIValidator struct {
	embedding *domain.EmbeddingSettings
	llm       *domain.LLMSettings
	models    []string
	err       error
}

func (v *stubAIValidator) ValidateEmbedding(_ context.Context, c *domain.EmbeddingSettings) error {
	v.embedding = c
	return v.err
}

func (v *stubAIValidator) ValidateLLM(_ context.Context, c *domain.LLMSettings) error {
	v.llm = c
	return v.err
}

func (v *stubAIValidator) ListLLMModels(_ context.Context, c *domain.LLMSettings) ([]string, error) {
	v.llm = c
	return v.models, v.err
}

func newSettingsService(values map[string]any) (*SettingsService, *memory.ConfigStore) {
	store := memory.NewConfigStoreFrom(values)
	svc := NewSettingsService(store, nil)
	svc.getenv = func(string) string { return "" }
	return svc, store
}

func TestSettings_Defaults(t *testing.T) {
	svc, _ := newSettingsService(nil)

	s, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), *s)
	assert.Equal(t, domain.DefaultSettings(), svc.GetDefaults())
}

func TestSettings_LoadsConfigValues(t *testing.T) {
	svc, _ := newSettingsService(map[string]any{
		"chunking.size":              int64(500),
		"chunking.overlap":           int64(50),
		"chunking.tolerance":         int64(100),
		"retrieval.threshold":        0.25,
		"context.unit":               "tokens",
		"generation.initial_backoff": "1s",
		"llm.stream":                 true,
		"project.name":               "docqa",
	})

	s, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, 500, s.Chunking.Size)
	assert.True(t, s.Retrieval.HasThreshold)
	assert.InDelta(t, 0.25, s.Retrieval.Threshold, 1e-9)
	assert.Equal(t, domain.BudgetUnitTokens, s.Context.Unit)
	assert.Equal(t, time.Second, s.Generation.InitialBackoff)
	assert.True(t, s.LLM.Stream)
	assert.Equal(t, "docqa", s.Project.Name)
}

func TestSettings_ProviderDefaults(t *testing.T) {
	svc, _ := newSettingsService(map[string]any{
		"embedding.provider": "openai",
		"llm.provider":       "anthropic",
	})
	svc.getenv = func(k string) string { return "key-for-" + k }

	s, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultEmbeddingModels()[domain.AIProviderOpenAI], s.Embedding.Model)
	assert.Equal(t, domain.DefaultLLMModels()[domain.AIProviderAnthropic], s.LLM.Model)
	assert.Equal(t, "key-for-OPENAI_API_KEY", s.Embedding.APIKey)
	assert.Equal(t, "key-for-ANTHROPIC_API_KEY", s.LLM.APIKey)
	assert.Empty(t, s.LLM.BaseURL)
}

func TestSettings_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{"overlap not below size", map[string]any{"chunking.size": int64(100), "chunking.overlap": int64(100)}},
		{"overlap plus tolerance", map[string]any{"chunking.size": int64(100), "chunking.overlap": int64(50), "chunking.tolerance": int64(60)}},
		{"top_k out of range", map[string]any{"retrieval.top_k": int64(0)}},
		{"unknown boundary", map[string]any{"chunking.boundary": "chapter"}},
		{"unknown unit", map[string]any{"context.unit": "words"}},
		{"min truncated over budget", map[string]any{"context.budget": int64(100), "context.min_truncated": int64(200)}},
		{"backoff inverted", map[string]any{"generation.initial_backoff": "10s", "generation.max_backoff": "1s"}},
		{"embedding without key", map[string]any{"embedding.provider": "openai"}},
		{"wrong type", map[string]any{"chunking.size": "large"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newSettingsService(tt.values)
			_, err := svc.Get()
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestSettings_SetAndUnset(t *testing.T) {
	svc, store := newSettingsService(nil)

	require.NoError(t, svc.Set("retrieval.top_k", "5"))
	v, ok := store.Get("retrieval.top_k")
	require.True(t, ok)
	assert.Equal(t, int64(5), v)

	require.NoError(t, svc.Set("generation.timeout", "30s"))
	v, ok = store.Get("generation.timeout")
	require.True(t, ok)
	assert.Equal(t, "30s", v)

	s, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, 5, s.Retrieval.TopK)
	assert.Equal(t, 30*time.Second, s.Generation.Timeout)

	shown, ok := Value(s, "retrieval.top_k")
	require.True(t, ok)
	assert.Equal(t, "5", shown)

	require.NoError(t, svc.Unset("retrieval.top_k"))
	s, err = svc.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings().Retrieval.TopK, s.Retrieval.TopK)
}

func TestSettings_SetRejectsBadValues(t *testing.T) {
	svc, store := newSettingsService(nil)

	assert.ErrorIs(t, svc.Set("nope", "1"), domain.ErrInvalidConfig)
	assert.ErrorIs(t, svc.Set("retrieval.top_k", "many"), domain.ErrInvalidConfig)
	assert.ErrorIs(t, svc.Set("chunking.overlap", "5000"), domain.ErrInvalidConfig)
	assert.ErrorIs(t, svc.Unset("nope"), domain.ErrInvalidConfig)

	_, ok := store.Get("chunking.overlap")
	assert.False(t, ok)
}

func TestSettings_Keys(t *testing.T) {
	svc, _ := newSettingsService(nil)
	keys := svc.Keys()
	assert.Len(t, keys, len(settingFields))
	assert.IsIncreasing(t, keys)
	assert.Contains(t, keys, "retrieval.per_document_cap")
}

func TestSettings_ValuesOfInvalidConfig(t *testing.T) {
	svc, _ := newSettingsService(map[string]any{"embedding.provider": "openai"})

	_, err := svc.Get()
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	values, err := svc.Values()
	require.NoError(t, err)
	assert.Len(t, values, len(settingFields))
	assert.Equal(t, "openai", values["embedding.provider"])
	assert.Equal(t, "3", values["retrieval.top_k"])
	assert.Equal(t, "", values["embedding.api_key"])
}

func TestSettings_ValidateProviders(t *testing.T) {
	svc, _ := newSettingsService(nil)
	require.NoError(t, svc.ValidateEmbeddingConfig(context.Background()))

	v := &stubAIValidator{}
	svc.aiValidator = v
	require.NoError(t, svc.ValidateEmbeddingConfig(context.Background()))
	require.NoError(t, svc.ValidateLLMConfig(context.Background()))
	require.NotNil(t, v.embedding)
	assert.Equal(t, domain.AIProviderLocal, v.embedding.Provider)
	assert.Equal(t, domain.AIProviderOllama, v.llm.Provider)

	v.err = errors.New("unreachable")
	assert.Error(t, svc.ValidateLLMConfig(context.Background()))
}

func TestSettings_ListLLMModels(t *testing.T) {
	svc, _ := newSettingsService(map[string]any{"llm.model": "mistral"})
	_, err := svc.ListLLMModels(context.Background())
	assert.Error(t, err)

	v := &stubAIValidator{models: []string{"llama3.2", "mistral"}}
	svc.aiValidator = v
	models, err := svc.ListLLMModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2", "mistral"}, models)
	assert.Equal(t, "mistral", v.llm.Model)
}
