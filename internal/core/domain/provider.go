package domain

import "maps"

// AIProvider identifies an embedding or generation backend.
type AIProvider string

const (
	// AIProviderLocal is the in-process hashing embedder. Embeddings only.
	AIProviderLocal     AIProvider = "local"
	AIProviderOllama    AIProvider = "ollama"
	AIProviderOpenAI    AIProvider = "openai"
	AIProviderAnthropic AIProvider = "anthropic"
)

// providerInfo describes one provider. An empty default model means the
// provider does not offer that capability.
type providerInfo struct {
	description string
	needsKey    bool
	local       bool
	embedModel  string
	llmModel    string
}

var providers = map[AIProvider]providerInfo{
	AIProviderLocal: {
		description: "Local hashing embedder (offline)",
		local:       true,
		embedModel:  "hashing-v1",
	},
	AIProviderOllama: {
		description: "Ollama (local)",
		local:       true,
		embedModel:  "nomic-embed-text",
		llmModel:    "llama3.2",
	},
	AIProviderOpenAI: {
		description: "OpenAI (cloud)",
		needsKey:    true,
		embedModel:  "text-embedding-3-small",
		llmModel:    "gpt-4o-mini",
	},
	AIProviderAnthropic: {
		description: "Anthropic (cloud)",
		needsKey:    true,
		llmModel:    "claude-3-5-sonnet-latest",
	},
}

// knownDimensions maps embedding models to their vector length.
var knownDimensions = map[string]int{
	"hashing-v1":             512,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

func (p AIProvider) String() string { return string(p) }

func (p AIProvider) IsValid() bool {
	_, ok := providers[p]
	return ok
}

func (p AIProvider) RequiresAPIKey() bool { return providers[p].needsKey }

// IsLocal reports whether the provider runs on this machine.
func (p AIProvider) IsLocal() bool { return providers[p].local }

// Embeds reports whether the provider can produce embeddings.
func (p AIProvider) Embeds() bool { return providers[p].embedModel != "" }

// Generates reports whether the provider can answer questions.
func (p AIProvider) Generates() bool { return providers[p].llmModel != "" }

// Description is the label shown in provider menus.
func (p AIProvider) Description() string {
	if info, ok := providers[p]; ok {
		return info.description
	}
	return "Unknown"
}

// AllEmbeddingProviders lists embedding providers in menu order.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{AIProviderLocal, AIProviderOllama, AIProviderOpenAI}
}

// AllLLMProviders lists generation providers in menu order.
func AllLLMProviders() []AIProvider {
	return []AIProvider{AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic}
}

// DefaultEmbeddingModels maps each embedding provider to its default model.
func DefaultEmbeddingModels() map[AIProvider]string {
	out := make(map[AIProvider]string)
	for p, info := range providers {
		if info.embedModel != "" {
			out[p] = info.embedModel
		}
	}
	return out
}

// DefaultLLMModels maps each generation provider to its default model.
func DefaultLLMModels() map[AIProvider]string {
	out := make(map[AIProvider]string)
	for p, info := range providers {
		if info.llmModel != "" {
			out[p] = info.llmModel
		}
	}
	return out
}

// EmbeddingDimensions returns the vector length of known embedding models.
// The map is a copy.
func EmbeddingDimensions() map[string]int {
	return maps.Clone(knownDimensions)
}
