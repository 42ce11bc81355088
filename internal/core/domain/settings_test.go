package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEmbeddingSettings_IsConfigured tests embedding readiness
func TestEmbeddingSettings_IsConfigured(t *testing.T) {
	assert.True(t, EmbeddingSettings{Provider: AIProviderLocal}.IsConfigured())
	assert.False(t, EmbeddingSettings{Provider: AIProviderOpenAI}.IsConfigured())
	assert.True(t, EmbeddingSettings{Provider: AIProviderOpenAI, APIKey: "sk"}.IsConfigured())
	assert.False(t, EmbeddingSettings{Provider: AIProviderAnthropic, APIKey: "sk"}.IsConfigured())
}

// TestLLMSettings_IsConfigured tests generation readiness
func TestLLMSettings_IsConfigured(t *testing.T) {
	assert.True(t, LLMSettings{Provider: AIProviderOllama}.IsConfigured())
	assert.False(t, LLMSettings{Provider: AIProviderAnthropic}.IsConfigured())
	assert.False(t, LLMSettings{Provider: AIProviderLocal}.IsConfigured())
}

// TestDefaultSettings tests the defaults are internally consistent
func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, 1000, s.Chunking.Size)
	assert.Equal(t, 200, s.Chunking.Overlap)
	assert.Less(t, s.Chunking.Overlap+s.Chunking.Tolerance, s.Chunking.Size)
	assert.Equal(t, 3, s.Retrieval.TopK)
	assert.Equal(t, BudgetUnitChars, s.Context.Unit)
	assert.Equal(t, StorageSQLite, s.Storage.Backend)
	assert.True(t, s.Embedding.IsConfigured())
	assert.True(t, s.LLM.IsConfigured())
}

// TestChunkingSettings_Fingerprint tests every chunker knob changes the fingerprint
func TestChunkingSettings_Fingerprint(t *testing.T) {
	base := DefaultSettings().Chunking
	assert.Equal(t, base.Fingerprint(), base.Fingerprint())

	for _, change := range []func(*ChunkingSettings){
		func(c *ChunkingSettings) { c.Size++ },
		func(c *ChunkingSettings) { c.Overlap++ },
		func(c *ChunkingSettings) { c.Tolerance++ },
		func(c *ChunkingSettings) { c.Boundary = BoundarySentence },
	} {
		c := base
		change(&c)
		assert.NotEqual(t, base.Fingerprint(), c.Fingerprint())
	}
}

// TestPipelineConfigFor tests chunker config mapping
func TestPipelineConfigFor(t *testing.T) {
	cfg := PipelineConfigFor(ChunkingSettings{Size: 500, Overlap: 50, Tolerance: 100, Boundary: BoundarySentence})

	assert.Equal(t, []string{"chunker"}, cfg.Processors)
	chunker := cfg.GetProcessorConfig("chunker")
	assert.Equal(t, 500, chunker["chunk_size"])
	assert.Equal(t, "sentence", chunker["boundary"])
	assert.Nil(t, cfg.GetProcessorConfig("missing"))
}
