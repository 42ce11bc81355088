// Package aihttp holds the HTTP plumbing shared by the embedding and LLM
// adapters: JSON requests and the mapping of transport and status failures
// onto the domain's transient error sentinels.
package aihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// Kind says which capability a request serves. It selects the sentinel a
// transient failure maps to.
type Kind int

const (
	// Embedding failures map to domain.ErrEmbeddingUnavailable.
	Embedding Kind = iota
	// Generation failures map to domain.ErrGenerationUnavailable, and
	// deadline overruns to domain.ErrGenerationTimeout.
	Generation
)

// maxErrorBody caps how much of an error response is quoted.
const maxErrorBody = 512

// PostJSON sends body as JSON and returns the response of a 2xx reply. Any
// other outcome is returned as a classified error. The caller closes the
// response body.
func PostJSON(
	ctx context.Context, client *http.Client, url string, headers map[string]string, body any, kind Kind, provider string,
) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return Do(client, req, kind, provider)
}

// Get sends a GET and returns the response of a 2xx reply.
func Get(
	ctx context.Context, client *http.Client, url string, headers map[string]string, kind Kind, provider string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", provider, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return Do(client, req, kind, provider)
}

// Do executes req and classifies failures.
func Do(client *http.Client, req *http.Request, kind Kind, provider string) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, Classify(req.Context(), err, kind, provider)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, StatusError(resp.StatusCode, body, kind, provider)
}

// StatusError classifies a non-2xx reply. Rate limiting and server errors
// are transient; other statuses are permanent.
func StatusError(status int, body []byte, kind Kind, provider string) error {
	msg := fmt.Sprintf("%s: API returned status %d: %s", provider, status, bytes.TrimSpace(body))
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%w: %s", unavailable(kind), msg)
	case status == http.StatusRequestTimeout && kind == Generation:
		return fmt.Errorf("%w: %s", domain.ErrGenerationTimeout, msg)
	case status == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %s", unavailable(kind), msg)
	default:
		return errors.New(msg)
	}
}

// Classify maps a transport error. Caller cancellation passes through
// untouched so it is never retried.
func Classify(ctx context.Context, err error, kind Kind, provider string) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return err
	}
	if isTimeout(err) {
		if kind == Generation {
			return fmt.Errorf("%w: %s: %w", domain.ErrGenerationTimeout, provider, err)
		}
		return fmt.Errorf("%w: %s timed out: %w", domain.ErrEmbeddingUnavailable, provider, err)
	}
	return fmt.Errorf("%w: %s: %w", unavailable(kind), provider, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func unavailable(kind Kind) error {
	if kind == Generation {
		return domain.ErrGenerationUnavailable
	}
	return domain.ErrEmbeddingUnavailable
}

// Decode reads a JSON response body into v. A malformed reply from the
// provider counts as the provider being unavailable.
func Decode(resp *http.Response, v any, kind Kind, provider string) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", unavailable(kind), provider, err)
	}
	return nil
}
