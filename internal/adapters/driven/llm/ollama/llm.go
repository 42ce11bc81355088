// Package ollama generates answers with a local Ollama server's /api/generate.
package ollama

import (
	"context"
	"encoding/json"
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
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

// Config configures the service. Zero fields take the defaults above.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMService talks to one Ollama server. It needs no credentials.
type LLMService struct {
	api   *aihttp.Client
	model string
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options *sampleSettings `json:"options,omitempty"`
}

type sampleSettings struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// generateResponse is the whole reply, or one line of a streamed one.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// tagsResponse lists the models pulled onto the server.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewLLMService creates the service. No request is made.
func NewLLMService(cfg Config) *LLMService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &LLMService{
		api:   aihttp.NewClient(cfg.BaseURL, cfg.Timeout, aihttp.Generation, "ollama"),
		model: cfg.Model,
	}
}

// Generate sends one prompt. A streamed reply arrives as JSON lines, each
// carrying the next piece of text.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	req := generateRequest{Model: s.model, Prompt: prompt, System: opts.System, Stream: opts.Stream}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.MaxTokens > 0 || opts.Temperature > 0 {
		req.Options = &sampleSettings{NumPredict: opts.MaxTokens, Temperature: opts.Temperature}
	}

	resp, err := s.api.Post(ctx, "/api/generate", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !opts.Stream {
		var reply generateResponse
		if err := s.api.Decode(resp, &reply); err != nil {
			return "", err
		}
		if reply.Error != "" {
			return "", s.api.Failf("%s", reply.Error)
		}
		return reply.Response, nil
	}

	answer := &aihttp.Transcript{OnToken: opts.OnToken}
	err = s.api.Lines(ctx, resp, func(line []byte) error {
		var part generateResponse
		if err := json.Unmarshal(line, &part); err != nil {
			return s.api.Failf("decode stream: %v", err)
		}
		if part.Error != "" {
			return s.api.Failf("%s", part.Error)
		}
		answer.Add(part.Response)
		if part.Done {
			return answer.Finish()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer.Result(s.api)
}

func (s *LLMService) ModelName() string { return s.model }

// Ping lists local models, which proves the server is up without loading one.
func (s *LLMService) Ping(ctx context.Context) error {
	return s.api.Ping(ctx, "/api/tags")
}

// Models returns the models pulled onto the server, sorted by name.
func (s *LLMService) Models(ctx context.Context) ([]string, error) {
	var reply tagsResponse
	if err := s.api.GetJSON(ctx, "/api/tags", &reply); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(reply.Models))
	for _, m := range reply.Models {
		names = append(names, m.Name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *LLMService) Close() error { return nil }
