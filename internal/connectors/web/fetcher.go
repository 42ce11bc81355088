// Package web downloads documentation pages for `docqa add --url`.
package web

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/logger"
)

var _ driven.PageFetcher = (*Fetcher)(nil)

const (
	DefaultTimeout = 10 * time.Second

	// DefaultMaxSize matches the filesystem source's file limit.
	DefaultMaxSize int64 = 20 << 20

	userAgent = "docqa"
)

// Fetcher retrieves pages over HTTP(S).
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithMaxSize sets the largest body that will be read.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// New creates a fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  &http.Client{Timeout: DefaultTimeout},
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL. Only http and https are accepted. Non-2xx
// replies, oversized bodies and transport failures wrap domain.ErrIOFailure;
// a content type no normaliser reads is domain.ErrUnsupportedFormat.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.RawDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: not an http(s) URL: %q", domain.ErrInvalidInput, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: fetching %s: %w", domain.ErrIOFailure, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: fetching %s: %s", domain.ErrIOFailure, rawURL, resp.Status)
	}

	format, ok := formatOf(resp.Header.Get("Content-Type"), u)
	if !ok {
		return nil, fmt.Errorf("%w: %s served %q", domain.ErrUnsupportedFormat, rawURL, resp.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", domain.ErrIOFailure, rawURL, err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", domain.ErrIOFailure, rawURL, f.maxSize)
	}

	logger.Debug("Fetched %s (%s, %d bytes)", rawURL, format, len(body))
	return &domain.RawDocument{SourceID: rawURL, Format: format, Content: body}, nil
}

// formatOf picks the normaliser for a reply. A generic or missing content
// type defers to the URL's extension, and a page with neither is HTML.
func formatOf(contentType string, u *url.URL) (domain.Format, bool) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return domain.FormatHTML, true
	case "application/pdf":
		return domain.FormatPDF, true
	case "text/markdown", "text/x-markdown":
		return domain.FormatMarkdown, true
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return domain.FormatDOCX, true
	case "text/plain", "application/octet-stream", "":
		if format, ok := domain.FormatFromPath(u.Path); ok {
			return format, true
		}
		if mediaType == "text/plain" {
			return domain.FormatText, true
		}
		return domain.FormatHTML, mediaType == ""
	default:
		return "", false
	}
}
