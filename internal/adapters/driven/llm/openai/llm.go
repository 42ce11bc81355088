// Package openai generates answers with the OpenAI chat completions API or
// any server that speaks it.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/custodia-labs/docqa/internal/adapters/driven/aihttp"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

var (
	_ driven.LLMService  = (*LLMService)(nil)
	_ driven.ModelLister = (*LLMService)(nil)
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second
)

// Config configures the service. APIKey is required; other zero fields
// take the defaults above.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMService calls /chat/completions with a system and a user message.
type LLMService struct {
	api   *aihttp.Client
	model string
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// completionChunk is one data event of a streamed completion.
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// NewLLMService creates the service. No request is made.
func NewLLMService(cfg Config) (*LLMService, error) {
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

	api := aihttp.NewClient(cfg.BaseURL, cfg.Timeout, aihttp.Generation, "openai")
	api.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	return &LLMService{api: api, model: cfg.Model}, nil
}

func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	req := completionRequest{
		Model:       s.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      opts.Stream,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.System != "" {
		req.Messages = append(req.Messages, message{Role: "system", Content: opts.System})
	}
	req.Messages = append(req.Messages, message{Role: "user", Content: prompt})

	resp, err := s.api.Post(ctx, "/chat/completions", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !opts.Stream {
		var reply completionResponse
		if err := s.api.Decode(resp, &reply); err != nil {
			return "", err
		}
		if len(reply.Choices) == 0 {
			return "", s.api.Failf("no choices returned")
		}
		return reply.Choices[0].Message.Content, nil
	}

	answer := &aihttp.Transcript{OnToken: opts.OnToken}
	err = s.api.Events(ctx, resp, func(data []byte) error {
		if string(data) == "[DONE]" {
			return answer.Finish()
		}
		var chunk completionChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return s.api.Failf("decode stream: %v", err)
		}
		for _, c := range chunk.Choices {
			answer.Add(c.Delta.Content)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer.Result(s.api)
}

func (s *LLMService) ModelName() string { return s.model }

// Ping lists models. It checks the key without spending tokens.
func (s *LLMService) Ping(ctx context.Context) error {
	return s.api.Ping(ctx, "/models")
}

// modelList is the reply of /models.
type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Models returns the model IDs the key can use, sorted.
func (s *LLMService) Models(ctx context.Context) ([]string, error) {
	var reply modelList
	if err := s.api.GetJSON(ctx, "/models", &reply); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(reply.Data))
	for _, m := range reply.Data {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *LLMService) Close() error { return nil }
