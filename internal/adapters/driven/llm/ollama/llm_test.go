package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

func TestNewLLMService_Defaults(t *testing.T) {
	s := NewLLMService(Config{})
	assert.Equal(t, DefaultModel, s.ModelName())
	assert.Equal(t, DefaultBaseURL, s.api.BaseURL)
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, "What is docqa?", req.Prompt)

		_ = json.NewEncoder(w).Encode(generateResponse{Response: "A documentation assistant.", Done: true})
	}))
	defer srv.Close()

	s := NewLLMService(Config{BaseURL: srv.URL})
	out, err := s.Generate(context.Background(), "What is docqa?", driven.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "A documentation assistant.", out)
}

func TestGenerate_ModelOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: req.Model, Done: true})
	}))
	defer srv.Close()

	s := NewLLMService(Config{BaseURL: srv.URL})
	out, err := s.Generate(context.Background(), "p", driven.GenerateOptions{Model: "mistral"})
	require.NoError(t, err)
	assert.Equal(t, "mistral", out)
	assert.Equal(t, DefaultModel, s.ModelName())
}

func TestGenerate_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		for _, piece := range []string{"Chunks ", "overlap ", "by 200."} {
			_, _ = fmt.Fprintf(w, "{\"response\":%q,\"done\":false}\n", piece)
		}
		_, _ = fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	var tokens []string
	s := NewLLMService(Config{BaseURL: srv.URL})
	out, err := s.Generate(context.Background(), "p", driven.GenerateOptions{
		Stream:  true,
		OnToken: func(tok string) { tokens = append(tokens, tok) },
	})
	require.NoError(t, err)
	assert.Equal(t, "Chunks overlap by 200.", out)
	assert.Equal(t, []string{"Chunks ", "overlap ", "by 200."}, tokens)
}

func TestGenerate_StreamEndsEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, `{"response":"partial","done":false}`)
	}))
	defer srv.Close()

	s := NewLLMService(Config{BaseURL: srv.URL})
	_, err := s.Generate(context.Background(), "p", driven.GenerateOptions{Stream: true})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"overloaded", http.StatusServiceUnavailable, domain.ErrGenerationUnavailable},
		{"request timeout", http.StatusRequestTimeout, domain.ErrGenerationTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewLLMService(Config{BaseURL: srv.URL}).Generate(context.Background(), "p", driven.GenerateOptions{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("model not found is permanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"model 'nope' not found"}`, http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := NewLLMService(Config{BaseURL: srv.URL}).Generate(context.Background(), "p", driven.GenerateOptions{})
		require.Error(t, err)
		assert.False(t, domain.IsTransient(err))
	})
}

func TestGenerate_ClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client hanging up.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := NewLLMService(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := s.Generate(context.Background(), "p", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrGenerationTimeout)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()
	assert.NoError(t, NewLLMService(Config{BaseURL: srv.URL}).Ping(context.Background()))

	srv.Close()
	assert.ErrorIs(t, NewLLMService(Config{BaseURL: srv.URL}).Ping(context.Background()), domain.ErrGenerationUnavailable)
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"mistral:latest","size":4109865159},{"name":"llama3.2:latest"}]}`))
	}))
	defer srv.Close()

	models, err := NewLLMService(Config{BaseURL: srv.URL}).Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:latest", "mistral:latest"}, models)
}

func TestModels_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := NewLLMService(Config{BaseURL: srv.URL}).Models(context.Background())
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}
