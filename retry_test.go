package tablesmasher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastRetry(3).Do(context.Background(), "fetch", func() error {
		calls++
		if calls < 3 {
			return NewTransientStoreError("flaky", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	cause := NewTransientStoreError("still flaky", nil)
	err := fastRetry(3).Do(context.Background(), "fetch", func() error {
		calls++
		return cause
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	// The final failure comes back unchanged.
	assert.Same(t, cause, err)
}

func TestRetryDoesNotRetryFatalErrors(t *testing.T) {
	calls := 0
	cause := NewInvalidSpecificationError("bad spec")
	err := fastRetry(3).Do(context.Background(), "fetch", func() error {
		calls++
		return cause
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Same(t, error(cause), err)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastRetry(100).Do(ctx, "fetch", func() error {
		calls++
		cancel()
		return NewTransientStoreError("flaky", nil)
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
}

func TestRetryCustomPredicate(t *testing.T) {
	sentinel := errors.New("retry me")
	policy := fastRetry(3)
	policy.Retryable = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	err := policy.Do(context.Background(), "fetch", func() error {
		calls++
		if calls < 2 {
			return sentinel
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	// Transient store errors are no longer retryable under this predicate.
	calls = 0
	err = policy.Do(context.Background(), "fetch", func() error {
		calls++
		return NewTransientStoreError("flaky", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrySingleAttempt(t *testing.T) {
	calls := 0
	err := fastRetry(1).Do(context.Background(), "fetch", func() error {
		calls++
		return NewTransientStoreError("flaky", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
