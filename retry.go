package tablesmasher

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy controls retry of transient store failures. It is injected
// into the fetcher and uploader so retry behavior is testable without a
// real network.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsTransientStoreError.
	Retryable func(error) bool
}

// NewRetryPolicy builds a policy from configuration.
func NewRetryPolicy(cfg RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
}

// DefaultRetryPolicy returns the standard policy: 3 attempts, exponential
// backoff starting at 2s capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(DefaultConfig().Retry)
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransientStoreError(err)
}

// Do runs fn, retrying per the policy while fn returns a retryable error.
// The final failure is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, operation string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()

	wrapped := func() error {
		err := fn()
		if err != nil && !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		zap.S().Infow("retrying after transient failure",
			"operation", operation,
			"wait", wait,
			"error", err)
	}

	err := backoff.RetryNotify(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx),
		notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
