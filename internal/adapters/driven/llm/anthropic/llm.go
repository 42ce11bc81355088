// Package anthropic generates answers with the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/custodia-labs/docqa/internal/adapters/driven/aihttp"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

var (
	_ driven.LLMService  = (*LLMService)(nil)
	_ driven.ModelLister = (*LLMService)(nil)
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-sonnet-latest"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 1024

	anthropicVersion = "2023-06-01"
)

// Config configures the service. APIKey is required; other zero fields
// take the defaults above.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMService calls /v1/messages.
type LLMService struct {
	api   *aihttp.Client
	model string
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesRequest always carries max_tokens; the API rejects requests without it.
type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content []textBlock `json:"content"`
}

type streamEvent struct {
	Type  string    `json:"type"`
	Delta textBlock `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewLLMService creates the service. No request is made.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
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

	api := aihttp.NewClient(cfg.BaseURL, cfg.Timeout, aihttp.Generation, "anthropic")
	api.Headers = map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}
	return &LLMService{api: api, model: cfg.Model}, nil
}

func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	req := messagesRequest{
		Model:       s.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		System:      opts.System,
		Temperature: opts.Temperature,
		Stream:      opts.Stream,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}

	resp, err := s.api.Post(ctx, "/v1/messages", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !opts.Stream {
		var reply messagesResponse
		if err := s.api.Decode(resp, &reply); err != nil {
			return "", err
		}
		var out strings.Builder
		for _, block := range reply.Content {
			if block.Type == "text" {
				out.WriteString(block.Text)
			}
		}
		if out.Len() == 0 {
			return "", s.api.Failf("no text content returned")
		}
		return out.String(), nil
	}

	answer := &aihttp.Transcript{OnToken: opts.OnToken}
	err = s.api.Events(ctx, resp, func(data []byte) error {
		var ev streamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return s.api.Failf("decode stream: %v", err)
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" {
				answer.Add(ev.Delta.Text)
			}
		case "message_stop":
			return answer.Finish()
		case "error":
			return s.api.Failf("%s: %s", ev.Error.Type, ev.Error.Message)
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
	return s.api.Ping(ctx, "/v1/models")
}

// modelList is the reply of /v1/models.
type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Models returns the model IDs the key can use, sorted.
func (s *LLMService) Models(ctx context.Context) ([]string, error) {
	var reply modelList
	if err := s.api.GetJSON(ctx, "/v1/models", &reply); err != nil {
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
