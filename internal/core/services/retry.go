package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/logger"
)

// RetryPolicy bounds retries of calls to external capabilities.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialInterval is the delay before the second attempt. It doubles after each failure.
	InitialInterval time.Duration

	// MaxInterval caps the delay between attempts.
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns the policy used for embedding calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     4 * time.Second,
	}
}

// RetryPolicyFor builds the generation retry policy from settings.
func RetryPolicyFor(g domain.GenerationSettings) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     g.MaxAttempts,
		InitialInterval: g.InitialBackoff,
		MaxInterval:     g.MaxBackoff,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.InitialInterval <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// retry runs op until it succeeds, fails permanently, or attempts run out.
// Only domain.IsTransient errors are retried. Cancelling ctx interrupts the
// wait between attempts. attempts reports how many times op ran.
func retry[T any](ctx context.Context, p RetryPolicy, what string, op func(ctx context.Context) (T, error)) (T, int, error) {
	attempts := 0
	maxTries := p.MaxAttempts
	if maxTries < 1 {
		maxTries = 1
	}

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !domain.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("%s attempt %d/%d failed, retrying in %s: %v", what, attempts, maxTries, next, err)
		}),
	)
	return result, attempts, err
}
