// Package ratelimit throttles requests to a remote embedding provider.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultCooldown is how long requests pause after the provider reports
// itself unavailable.
const DefaultCooldown = 2 * time.Second

// Config holds rate limiting configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64

	// BurstSize is the maximum burst size. Defaults to one second's worth.
	BurstSize int

	// Cooldown pauses all requests after a transient failure.
	Cooldown time.Duration
}

// EmbeddingService wraps another embedding service with a token bucket.
// Each text counts as one request, so a batch waits for as many tokens as
// it has texts.
type EmbeddingService struct {
	next     driven.EmbeddingService
	limiter  *rate.Limiter
	cooldown time.Duration

	mu      sync.Mutex
	retryAt time.Time
}

// Wrap returns next throttled by cfg. A non-positive rate returns next unchanged.
func Wrap(next driven.EmbeddingService, cfg Config) driven.EmbeddingService {
	if cfg.RequestsPerSecond <= 0 {
		return next
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = max(int(cfg.RequestsPerSecond), 1)
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	return &EmbeddingService{
		next:     next,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		cooldown: cooldown,
	}
}

// wait blocks until n requests can be made without exceeding the rate limit.
// It also respects any cooldown set after a transient failure.
func (s *EmbeddingService) wait(ctx context.Context, n int) error {
	s.mu.Lock()
	retryAt := s.retryAt
	s.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	// WaitN rejects n above the burst, so large batches take tokens in slices.
	for n > 0 {
		take := min(n, s.limiter.Burst())
		if err := s.limiter.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

// record starts a cooldown when err says the provider is unavailable.
func (s *EmbeddingService) record(err error) {
	if err == nil || !domain.IsTransient(err) {
		return
	}
	s.mu.Lock()
	s.retryAt = time.Now().Add(s.cooldown)
	s.mu.Unlock()
}

// Embed waits for one token, then embeds text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.wait(ctx, 1); err != nil {
		return nil, err
	}
	v, err := s.next.Embed(ctx, text)
	s.record(err)
	return v, err
}

// EmbedBatch waits for one token per text, then embeds the batch.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.wait(ctx, len(texts)); err != nil {
		return nil, err
	}
	v, err := s.next.EmbedBatch(ctx, texts)
	s.record(err)
	return v, err
}

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int { return s.next.Dimensions() }

// ModelName returns the wrapped service's model.
func (s *EmbeddingService) ModelName() string { return s.next.ModelName() }

// Ping is not throttled.
func (s *EmbeddingService) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

// Close closes the wrapped service.
func (s *EmbeddingService) Close() error { return s.next.Close() }
