package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           time.Second,
	}
}

// TestIsRetriableError tests error classification for the retry loop
func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		shouldRetry bool
	}{
		{
			name:        "nil error",
			err:         nil,
			shouldRetry: false,
		},
		{
			name:        "quota error - should retry",
			err:         errors.New("429 rate limit exceeded"),
			shouldRetry: true,
		},
		{
			name:        "rate limit phrase - should retry",
			err:         errors.New("rate limit hit, slow down"),
			shouldRetry: true,
		},
		{
			name:        "transient error - should retry",
			err:         errors.New("500 internal server error"),
			shouldRetry: true,
		},
		{
			name:        "bad gateway - should retry",
			err:         errors.New("502 bad gateway"),
			shouldRetry: true,
		},
		{
			name:        "connection refused - should retry",
			err:         errors.New("connection refused"),
			shouldRetry: true,
		},
		{
			name:        "deadline exceeded - should retry",
			err:         context.DeadlineExceeded,
			shouldRetry: true,
		},
		{
			name:        "auth error - should NOT retry",
			err:         errors.New("401 unauthorized"),
			shouldRetry: false,
		},
		{
			name:        "invalid request - should NOT retry",
			err:         errors.New("400 bad request"),
			shouldRetry: false,
		},
		{
			name:        "unknown error - should NOT retry",
			err:         errors.New("mysterious error"),
			shouldRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetriableError(tt.err)
			assert.Equal(t, tt.shouldRetry, result, "Expected shouldRetry=%v, got %v", tt.shouldRetry, result)
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, isRateLimitError(errors.New("HTTP 429: too many requests")))
	assert.True(t, isRateLimitError(errors.New("rate limit exceeded")))
	assert.False(t, isRateLimitError(errors.New("503 service unavailable")))
	assert.False(t, isRateLimitError(nil))
}

// TestCircuitBreakerOpensAfterThreshold tests the closed -> open transition
func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, 50*time.Millisecond)

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, CircuitClosed, cb.GetState(), "Circuit should still be closed below threshold")
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState(), "Circuit should open at threshold")
	assert.ErrorIs(t, cb.Allow(), ErrProviderUnavailable)
}

// TestCircuitBreakerRecovery tests open -> half-open -> closed
func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 20*time.Millisecond)

	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.GetState())

	// After the open timeout the next Allow transitions to half-open
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	// Two successes close the circuit
	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.GetState())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState())
}

// TestCircuitBreakerHalfOpenFailureReopens tests that a failed probe reopens
func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
}

// TestCircuitBreakerSuccessResetsFailures tests failure count reset
func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	_, failures, _ := cb.GetMetrics()
	assert.Equal(t, 0, failures, "Success in closed state should reset the failure count")
}

func TestCallerRetriesTransientErrors(t *testing.T) {
	c := newCaller("test", testRetryConfig())

	attempts := 0
	err := c.do(context.Background(), "flaky op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestCallerDoesNotRetryClientErrors(t *testing.T) {
	c := newCaller("test", testRetryConfig())

	attempts := 0
	err := c.do(context.Background(), "bad op", func(ctx context.Context) error {
		attempts++
		return errors.New("401 unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "Non-retriable errors must not be retried")
}

func TestCallerExhaustionWrapsRateLimit(t *testing.T) {
	c := newCaller("test", testRetryConfig())

	err := c.do(context.Background(), "throttled op", func(ctx context.Context) error {
		return errors.New("429 rate limit exceeded")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestCallerFailsFastWhenCircuitOpen(t *testing.T) {
	cfg := testRetryConfig()
	cfg.CircuitBreakerEnabled = true
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 1
	cfg.OpenTimeout = time.Minute
	c := newCaller("test", cfg)

	// Trip the breaker
	_ = c.do(context.Background(), "failing op", func(ctx context.Context) error {
		return errors.New("503 service unavailable")
	})
	require.Equal(t, CircuitOpen, c.breaker.GetState())

	attempts := 0
	err := c.do(context.Background(), "blocked op", func(ctx context.Context) error {
		attempts++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 0, attempts, "Open circuit must fail fast without calling the provider")

	assert.ErrorIs(t, c.health(), ErrProviderUnavailable)
}

func TestCallerHealthWhenClosed(t *testing.T) {
	cfg := testRetryConfig()
	cfg.CircuitBreakerEnabled = true
	cfg.FailureThreshold = 5
	cfg.SuccessThreshold = 2
	cfg.OpenTimeout = time.Minute
	c := newCaller("test", cfg)
	assert.NoError(t, c.health())
}

func TestCallerRespectsCancellation(t *testing.T) {
	c := newCaller("test", testRetryConfig())

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := c.do(ctx, "canceled op", func(attemptCtx context.Context) error {
		attempts++
		cancel()
		return errors.New("503 service unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "Cancellation must stop the retry loop")
}
