package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

func newService(t *testing.T, url string) *LLMService {
	t.Helper()
	s, err := NewLLMService(Config{APIKey: "sk-ant-test", BaseURL: url})
	require.NoError(t, err)
	return s
}

func TestNewLLMService(t *testing.T) {
	_, err := NewLLMService(Config{})
	require.Error(t, err)

	s, err := NewLLMService(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, s.ModelName())
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
		assert.Equal(t, "Answer from the excerpts.", req.System)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"See [1]."}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	out, err := newService(t, srv.URL).Generate(context.Background(), "q", driven.GenerateOptions{
		System: "Answer from the excerpts.",
	})
	require.NoError(t, err)
	assert.Equal(t, "See [1].", out)
}

func TestGenerate_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		for _, piece := range []string{"Re", "try ", "three times."} {
			_, _ = fmt.Fprintf(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":%q}}\n\n", piece)
		}
		_, _ = fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	var tokens []string
	out, err := newService(t, srv.URL).Generate(context.Background(), "q", driven.GenerateOptions{
		Stream:  true,
		OnToken: func(tok string) { tokens = append(tokens, tok) },
	})
	require.NoError(t, err)
	assert.Equal(t, "Retry three times.", out)
	assert.Equal(t, []string{"Re", "try ", "three times."}, tokens)
}

func TestGenerate_StreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	_, err := newService(t, srv.URL).Generate(context.Background(), "q", driven.GenerateOptions{Stream: true})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestGenerate_Overloaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(529)
	}))
	defer srv.Close()

	_, err := newService(t, srv.URL).Generate(context.Background(), "q", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestGenerate_NoText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	_, err := newService(t, srv.URL).Generate(context.Background(), "q", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newService(t, srv.URL).Ping(context.Background())
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"claude-sonnet-4-5","type":"model"},{"id":"claude-haiku-4-5","type":"model"}]}`))
	}))
	defer srv.Close()

	models, err := newService(t, srv.URL).Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-haiku-4-5", "claude-sonnet-4-5"}, models)
}
