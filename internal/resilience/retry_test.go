package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoVal_SucceedsFirstTry(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), RetryConfig{MaxAttempts: 3}, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Sleep:          func(context.Context, time.Duration) error { return nil },
	}
	val, err := DoVal(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(eris.New("temporarily down"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestDoVal_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	cfg := RetryConfig{
		MaxAttempts: 4,
		ShouldRetry: IsRateLimit,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
	_, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, eris.New("schema validation failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RateLimitRetryBound(t *testing.T) {
	// Under persistent rate limiting: 4 attempts total (3 retries), with
	// delays 2s, 4s, 8s.
	var delays []time.Duration
	cfg := RateLimitRetryConfig()
	cfg.Sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	calls := 0
	_, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, eris.New("rate limit exceeded")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	require.Len(t, delays, 3)
	assert.GreaterOrEqual(t, delays[0], 2*time.Second)
	assert.GreaterOrEqual(t, delays[1], 4*time.Second)
	assert.GreaterOrEqual(t, delays[2], 8*time.Second)
}

func TestDoVal_ContextCancelledStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{
		MaxAttempts: 5,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
	_, err := DoVal(ctx, cfg, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(eris.New("reset"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_OnRetryCalled(t *testing.T) {
	var attempts []int
	cfg := RetryConfig{
		MaxAttempts: 3,
		OnRetry:     func(attempt int, _ error) { attempts = append(attempts, attempt) },
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
	_, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		return 0, NewTransientError(eris.New("boom"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestComputeBackoff_Doubling(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: 2 * time.Second, Multiplier: 2.0})
	assert.Equal(t, 2*time.Second, computeBackoff(0, cfg))
	assert.Equal(t, 4*time.Second, computeBackoff(1, cfg))
	assert.Equal(t, 8*time.Second, computeBackoff(2, cfg))
}

func TestComputeBackoff_Capped(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: 20 * time.Second, MaxBackoff: 30 * time.Second})
	assert.Equal(t, 30*time.Second, computeBackoff(3, cfg))
}
