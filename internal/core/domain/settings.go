package domain

import (
	"fmt"
	"time"
)

// Boundary is the chunker's split-point preference.
type Boundary string

// Available boundary preferences.
const (
	BoundaryParagraph Boundary = "paragraph"
	BoundarySentence  Boundary = "sentence"
	BoundaryNone      Boundary = "none"
)

// StorageBackend selects the corpus persistence implementation.
type StorageBackend string

// Available storage backends.
const (
	StorageSQLite StorageBackend = "sqlite"
	StorageFile   StorageBackend = "file"
)

// ProjectSettings describe the documented project for prompt templates.
type ProjectSettings struct {
	Name        string `validate:"max=200"`
	Description string `validate:"max=2000"`
}

// ChunkingSettings configure the chunker.
type ChunkingSettings struct {
	// Size is the target chunk length in characters.
	Size int `validate:"min=16,max=100000"`

	// Overlap is how far each chunk reaches back into the previous one.
	Overlap int `validate:"min=0"`

	// Tolerance is the window below Size searched for a boundary.
	Tolerance int `validate:"min=0"`

	// Boundary is the preferred split point.
	Boundary Boundary `validate:"oneof=paragraph sentence none"`
}

// Fingerprint identifies the settings that decide where chunks are cut.
// A corpus chunked under a different fingerprint must be rebuilt.
func (c ChunkingSettings) Fingerprint() string {
	return fmt.Sprintf("size=%d,overlap=%d,tolerance=%d,boundary=%s", c.Size, c.Overlap, c.Tolerance, c.Boundary)
}

// RetrievalSettings configure the ranker.
type RetrievalSettings struct {
	// TopK is the default number of results per question.
	TopK int `validate:"min=1,max=100"`

	// PerDocumentCap limits results from one document. Zero disables the cap.
	PerDocumentCap int `validate:"min=0"`

	// Threshold drops results scoring below it. Disabled when HasThreshold is false.
	Threshold    float64 `validate:"min=-1,max=1"`
	HasThreshold bool

	// UsableThreshold: when every result scores below it, the question is
	// answered without context.
	UsableThreshold float64 `validate:"min=-1,max=1"`

	// DedupeContent drops results whose chunk text repeats a higher-ranked one.
	DedupeContent bool
}

// ContextSettings configure the context assembler.
type ContextSettings struct {
	// Budget is the maximum assembled context size in Unit.
	Budget int `validate:"min=1"`

	// Unit is chars or tokens.
	Unit BudgetUnit `validate:"oneof=chars tokens"`

	// MinTruncated is the least chunk text, in Unit, worth admitting truncated.
	MinTruncated int `validate:"min=1"`
}

// GenerationSettings configure retries and timeouts around the LLM.
type GenerationSettings struct {
	MaxAttempts    int           `validate:"min=1,max=10"`
	InitialBackoff time.Duration `validate:"min=0"`
	MaxBackoff     time.Duration `validate:"min=0"`

	// Timeout bounds a single generation call.
	Timeout time.Duration `validate:"min=0"`
}

// HistorySettings bound each session's conversation history.
type HistorySettings struct {
	// MaxChars is the character budget across retained turns.
	MaxChars int `validate:"min=1"`

	// MaxTurns is the turn count limit.
	MaxTurns int `validate:"min=1"`

	// PromptTurns is how many recent turns are rendered into prompts.
	PromptTurns int `validate:"min=0"`

	// IdleTimeout expires sessions not used for this long.
	IdleTimeout time.Duration `validate:"min=0"`
}

// EmbeddingSettings select and tune the embedding provider.
type EmbeddingSettings struct {
	Provider AIProvider `validate:"oneof=local ollama openai"`
	Model    string

	// BaseURL and APIKey apply to remote providers.
	BaseURL string
	APIKey  string

	// Dimensions overrides the model's known dimensionality.
	Dimensions int `validate:"min=0"`

	// RequestsPerSecond throttles remote providers. Zero is unlimited.
	RequestsPerSecond float64 `validate:"min=0"`

	// Concurrency is the number of chunks embedded in parallel.
	Concurrency int `validate:"min=1,max=64"`
}

// IsConfigured reports whether the provider embeds and has its credentials.
func (e EmbeddingSettings) IsConfigured() bool {
	return e.Provider.Embeds() && (e.APIKey != "" || !e.Provider.RequiresAPIKey())
}

// LLMSettings select the generation provider.
type LLMSettings struct {
	Provider AIProvider `validate:"oneof=ollama openai anthropic"`
	Model    string
	BaseURL  string
	APIKey   string

	// Stream requests incremental output where the provider supports it.
	Stream bool
}

// IsConfigured reports whether the provider generates and has its credentials.
func (l LLMSettings) IsConfigured() bool {
	return l.Provider.Generates() && (l.APIKey != "" || !l.Provider.RequiresAPIKey())
}

// StorageSettings select where the corpus lives.
type StorageSettings struct {
	Backend StorageBackend `validate:"oneof=sqlite file"`
}

// Settings is the full typed pipeline configuration.
type Settings struct {
	Project    ProjectSettings
	Chunking   ChunkingSettings
	Retrieval  RetrievalSettings
	Context    ContextSettings
	Generation GenerationSettings
	History    HistorySettings
	Embedding  EmbeddingSettings
	LLM        LLMSettings
	Storage    StorageSettings
}

// DefaultSettings returns settings that work offline for ingestion and
// against a local Ollama for generation.
func DefaultSettings() Settings {
	return Settings{
		Chunking: ChunkingSettings{
			Size:      1000,
			Overlap:   200,
			Tolerance: 300,
			Boundary:  BoundaryParagraph,
		},
		Retrieval: RetrievalSettings{
			TopK:            3,
			PerDocumentCap:  2,
			UsableThreshold: 0.05,
			DedupeContent:   true,
		},
		Context: ContextSettings{
			Budget:       4000,
			Unit:         BudgetUnitChars,
			MinTruncated: 200,
		},
		Generation: GenerationSettings{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     8 * time.Second,
			Timeout:        2 * time.Minute,
		},
		History: HistorySettings{
			MaxChars:    16000,
			MaxTurns:    20,
			PromptTurns: 3,
			IdleTimeout: time.Hour,
		},
		Embedding: EmbeddingSettings{
			Provider:    AIProviderLocal,
			Model:       providers[AIProviderLocal].embedModel,
			Concurrency: 4,
		},
		LLM: LLMSettings{
			Provider: AIProviderOllama,
			Model:    providers[AIProviderOllama].llmModel,
			BaseURL:  "http://localhost:11434",
		},
		Storage: StorageSettings{
			Backend: StorageSQLite,
		},
	}
}

// PipelineConfig names the post-processors to run, in order, and holds a
// loosely typed settings table for each.
type PipelineConfig struct {
	Processors       []string
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns the table for name, or nil.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	return c.ProcessorConfigs[name]
}

// PipelineConfigFor builds the post-processor pipeline config from chunking settings.
func PipelineConfigFor(c ChunkingSettings) PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"chunk_size": c.Size,
				"overlap":    c.Overlap,
				"tolerance":  c.Tolerance,
				"boundary":   string(c.Boundary),
			},
		},
	}
}
