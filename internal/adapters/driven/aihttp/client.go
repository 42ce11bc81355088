package aihttp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a provider endpoint: base URL, auth headers and the error
// classification every request against it shares.
type Client struct {
	HTTP     *http.Client
	BaseURL  string
	Headers  map[string]string
	Kind     Kind
	Provider string
}

// NewClient returns a Client whose requests time out after timeout.
func NewClient(baseURL string, timeout time.Duration, kind Kind, provider string) *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: timeout},
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Kind:     kind,
		Provider: provider,
	}
}

// Post sends body as JSON to path. The caller closes the response body.
func (c *Client) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return PostJSON(ctx, c.HTTP, c.BaseURL+path, c.Headers, body, c.Kind, c.Provider)
}

// Ping issues a GET against path and discards the reply.
func (c *Client) Ping(ctx context.Context, path string) error {
	resp, err := Get(ctx, c.HTTP, c.BaseURL+path, c.Headers, c.Kind, c.Provider)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// GetJSON issues a GET against path and decodes the JSON reply into v.
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	resp, err := Get(ctx, c.HTTP, c.BaseURL+path, c.Headers, c.Kind, c.Provider)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.Decode(resp, v)
}

// Decode reads a JSON reply into v.
func (c *Client) Decode(resp *http.Response, v any) error {
	return Decode(resp, v, c.Kind, c.Provider)
}

// Failf reports a malformed or unusable reply. It wraps the unavailable
// sentinel for the client's kind.
func (c *Client) Failf(format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", unavailable(c.Kind), c.Provider, fmt.Sprintf(format, args...))
}

// Lines scans a newline-delimited JSON reply.
func (c *Client) Lines(ctx context.Context, resp *http.Response, fn func(line []byte) error) error {
	return ScanLines(ctx, resp.Body, c.Kind, c.Provider, fn)
}

// Events scans a server-sent event reply.
func (c *Client) Events(ctx context.Context, resp *http.Response, fn func(data []byte) error) error {
	return ScanEvents(ctx, resp.Body, c.Kind, c.Provider, fn)
}

// Transcript collects a streamed answer and forwards each piece to OnToken.
type Transcript struct {
	OnToken func(string)

	b    strings.Builder
	done bool
}

// Add appends a piece of the answer. Empty pieces are ignored.
func (t *Transcript) Add(piece string) {
	if piece == "" {
		return
	}
	t.b.WriteString(piece)
	if t.OnToken != nil {
		t.OnToken(piece)
	}
}

// Finish marks the stream complete and stops the scan.
func (t *Transcript) Finish() error {
	t.done = true
	return Stop()
}

// Result returns the full answer, or an error from c if the stream ended
// before Finish was called.
func (t *Transcript) Result(c *Client) (string, error) {
	if !t.done {
		return "", c.Failf("stream ended early")
	}
	return t.b.String(), nil
}
