package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid column"), false},
		{"explicit", NewTransientError(errors.New("busy"), 503), true},
		{"wrapped explicit", fmt.Errorf("fetch: %w", NewTransientError(errors.New("slow down"), 429)), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"sqlite busy text", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastRetry(5)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("503"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := errors.New("syntax error")
	err := Do(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return perm
	})
	assert.ErrorIs(t, err, perm)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("down"), 502)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(5), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("down"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (int64, error) {
		calls++
		if calls == 1 {
			return 0, NewTransientError(errors.New("blip"), 0)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestBackoffFor_Capped(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second})
	assert.Equal(t, time.Second, backoffFor(0, cfg))
	assert.Equal(t, 2*time.Second, backoffFor(1, cfg))
	assert.Equal(t, 4*time.Second, backoffFor(5, cfg))
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2021, 9, 8, 10, 0, 0, 0, time.UTC)
	var transitions []string
	cfg := NewBreakerConfig(2, time.Minute)
	cfg.OnStateChange = func(from, to BreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	b := NewBreaker(cfg)
	b.now = func() time.Time { return now }

	fail := func(context.Context) error { return errors.New("db down") }
	ok := func(context.Context) error { return nil }

	_ = b.Execute(context.Background(), fail)
	assert.Equal(t, StateClosed, b.State())
	_ = b.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(context.Background(), func(context.Context) error {
		t.Fatal("called while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)

	now = now.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(NewBreakerConfig(1, time.Second))
	b.now = func() time.Time { return now }

	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("x") })
	now = now.Add(time.Second)
	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("still down") })
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_ShouldTripFilters(t *testing.T) {
	cfg := NewBreakerConfig(1, time.Minute)
	cfg.ShouldTrip = IsTransient
	b := NewBreaker(cfg)

	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("bad row") })
	assert.Equal(t, StateClosed, b.State())
}

func TestExecuteVal_Reset(t *testing.T) {
	b := NewBreaker(NewBreakerConfig(1, time.Hour))
	_, err := ExecuteVal(context.Background(), b, func(context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)

	_, err = ExecuteVal(context.Background(), b, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)

	b.Reset()
	v, err := ExecuteVal(context.Background(), b, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestNewBreakerConfig_Defaults(t *testing.T) {
	cfg := NewBreakerConfig(0, 0)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.ResetTimeout)
	assert.Equal(t, 1, cfg.HalfOpenProbes)
}
