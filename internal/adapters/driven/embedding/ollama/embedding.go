// Package ollama embeds text with a local Ollama server's /api/embed.
package ollama

import (
	"context"
	"time"

	"github.com/custodia-labs/docqa/internal/adapters/driven/aihttp"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "nomic-embed-text"
	DefaultTimeout = 30 * time.Second

	// fallbackDimensions applies to models missing from the known-model table.
	fallbackDimensions = 768

	provider = "ollama"
)

// Config configures the service. Zero fields take the defaults above;
// a zero Dimensions is looked up from the model name.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Dimensions int
}

// EmbeddingService batches texts into one /api/embed call.
type EmbeddingService struct {
	api   *aihttp.Client
	model string
	dims  int
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewEmbeddingService creates the service. No request is made.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &EmbeddingService{
		api:   aihttp.NewClient(cfg.BaseURL, cfg.Timeout, aihttp.Embedding, provider),
		model: cfg.Model,
		dims:  aihttp.Dimensions(cfg.Model, cfg.Dimensions, fallbackDimensions),
	}
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := s.api.Post(ctx, "/api/embed", embedRequest{Model: s.model, Input: texts})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out embedResponse
	if err := s.api.Decode(resp, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, s.api.Failf("%d embeddings for %d texts", len(out.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(out.Embeddings))
	for i, e := range out.Embeddings {
		if vectors[i], err = aihttp.Vector(s.model, e, s.dims); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

func (s *EmbeddingService) Dimensions() int   { return s.dims }
func (s *EmbeddingService) ModelName() string { return s.model }

// Ping lists local models, which needs no inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.api.Ping(ctx, "/api/tags")
}

func (s *EmbeddingService) Close() error { return nil }
