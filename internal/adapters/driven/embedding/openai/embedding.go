// Package openai embeds text with the OpenAI /v1/embeddings API or any
// compatible endpoint.
package openai

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/custodia-labs/docqa/internal/adapters/driven/aihttp"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second

	fallbackDimensions = 1536

	provider = "openai"
)

// Config configures the service. APIKey is required; other zero fields
// take the defaults above.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// Dimensions shortens text-embedding-3 vectors. For other models it
	// must match what the model returns.
	Dimensions int
}

// EmbeddingService sends batches of texts to /embeddings.
type EmbeddingService struct {
	api   *aihttp.Client
	model string
	dims  int
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type indexedVector struct {
	Index  int       `json:"index"`
	Values []float64 `json:"embedding"`
}

// NewEmbeddingService creates the service. No request is made.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	api := aihttp.NewClient(cfg.BaseURL, cfg.Timeout, aihttp.Embedding, provider)
	api.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	return &EmbeddingService{
		api:   api,
		model: cfg.Model,
		dims:  aihttp.Dimensions(cfg.Model, cfg.Dimensions, fallbackDimensions),
	}, nil
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request. The response may list
// embeddings in any order; they are placed by their index.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embeddingRequest{Model: s.model, Input: texts}
	// Only the text-embedding-3 family can be shortened.
	if strings.HasPrefix(s.model, "text-embedding-3-") {
		req.Dimensions = s.dims
	}
	resp, err := s.api.Post(ctx, "/embeddings", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Data []indexedVector `json:"data"`
	}
	if err := s.api.Decode(resp, &out); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, s.api.Failf("embedding index %d for %d inputs", d.Index, len(texts))
		}
		if vectors[d.Index], err = aihttp.Vector(s.model, d.Values, s.dims); err != nil {
			return nil, err
		}
	}
	if i := slices.IndexFunc(vectors, func(v []float32) bool { return v == nil }); i >= 0 {
		return nil, s.api.Failf("no embedding for input %d", i)
	}
	return vectors, nil
}

func (s *EmbeddingService) Dimensions() int   { return s.dims }
func (s *EmbeddingService) ModelName() string { return s.model }

// Ping lists models, which checks the key without spending tokens.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.api.Ping(ctx, "/models")
}

func (s *EmbeddingService) Close() error { return nil }
