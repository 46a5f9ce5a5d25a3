package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(retries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: succeeds after 3 attempts
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(2), func() error {
		attempts++
		return errors.New("persistent error")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestRetry_ZeroRetriesReturnsErrorUnwrapped(t *testing.T) {
	sentinel := errors.New("once")
	err := Retry(context.Background(), fastRetry(0), func() error { return sentinel })

	assert.Equal(t, sentinel, err)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	// Given: a predicate that only retries network errors
	cfg := fastRetry(5)
	cfg.ShouldRetry = IsRetryable

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return New(ErrCodeAccessDenied, "403", nil)
	})

	// Then: the first error is returned without retrying
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeAccessDenied, GetCode(err))
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(10)
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func() error {
			attempts++
			return errors.New("fail")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	case <-time.After(time.Second):
		t.Fatal("retry did not honour cancellation")
	}
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetry(2), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", NetworkError("refused", nil)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, attempts)
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 1, cfg.MaxRetries)
	assert.NotNil(t, cfg.ShouldRetry)
	assert.LessOrEqual(t, cfg.MaxDelay, time.Second)
}
