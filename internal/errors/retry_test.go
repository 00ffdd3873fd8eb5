package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("flaky"), "")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := NewPermanentError(errors.New("bad request"), "")
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return perm
	})

	require.Equal(t, 1, calls)
	var got *PermanentError
	require.ErrorAs(t, err, &got)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return NewTransientError(errors.New("still down"), "")
	})

	require.Error(t, err)
	require.Equal(t, 3, calls) // initial attempt + 2 retries
	require.Contains(t, err.Error(), "max retries exceeded")
}

func TestRetryWithResultHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithResult(ctx, fastRetryConfig(), func(ctx context.Context) (int, error) {
		return 0, NewTransientError(errors.New("never reached"), "")
	})

	require.Error(t, err)
	require.Contains(t, err.Error(), "context cancelled")
}

func TestBackoffDelayHonorsRetryAfterHint(t *testing.T) {
	cfg := DefaultRetryConfig()
	err := &TransientError{Err: errors.New("rate limited"), RetryAfter: 2}
	require.Equal(t, 2*time.Second, backoffDelay(0, cfg, err))

	err.RetryAfter = 3600
	require.Equal(t, cfg.MaxDelay, backoffDelay(0, cfg, err))
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	plain := errors.New("plain")

	require.Equal(t, 1*time.Second, backoffDelay(0, cfg, plain))
	require.Equal(t, 2*time.Second, backoffDelay(1, cfg, plain))
	require.Equal(t, 4*time.Second, backoffDelay(2, cfg, plain))
	require.Equal(t, 4*time.Second, backoffDelay(5, cfg, plain))
}

func TestIsTransientClassification(t *testing.T) {
	require.False(t, IsTransient(nil))
	require.True(t, IsTransient(NewTransientError(errors.New("x"), "")))
	require.False(t, IsTransient(NewPermanentError(errors.New("x"), "")))
	require.True(t, IsTransient(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.True(t, IsTransient(fmt.Errorf("request: %w", errors.New("connection refused"))))
	require.False(t, IsTransient(errors.New("schema validation rejected field")))
}

func TestTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		require.True(t, TransientHTTPStatus(code), "code %d", code)
	}
	for _, code := range []int{200, 400, 401, 404, 409} {
		require.False(t, TransientHTTPStatus(code), "code %d", code)
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})

	fail := func(ctx context.Context) error { return errors.New("boom") }
	ok := func(ctx context.Context) error { return nil }

	require.Error(t, cb.Execute(context.Background(), fail))
	require.Error(t, cb.Execute(context.Background(), fail))
	require.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), ok)
	var degraded *DegradedError
	require.ErrorAs(t, err, &degraded)

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, cb.Execute(context.Background(), ok))
	require.Equal(t, StateClosed, cb.State())
}

func TestExecuteFuncPassesThroughResult(t *testing.T) {
	cb := NewCircuitBreaker("test", DefaultCircuitBreakerConfig())
	got, err := ExecuteFunc(cb, context.Background(), func(ctx context.Context) (string, error) {
		return "value", nil
	})
	require.NoError(t, err)
	require.Equal(t, "value", got)
}
