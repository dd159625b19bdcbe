package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drover-dev/drover/internal/errors"
)

func recordingSleeper(delays *[]time.Duration) Sleeper {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func transientErr() error {
	return errors.New(errors.ErrCodeAgentFailed, "flaky").WithClass(errors.ClassTransient)
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Second, Sleep: recordingSleeper(&delays)}

	calls := 0
	result, err := p.Do(context.Background(), func(context.Context) (*Result, error) {
		calls++
		return &Result{Summary: "ok"}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "ok", result.Summary)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays, "no backoff before the first attempt")
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	var delays []time.Duration
	var attempts []int
	p := RetryPolicy{
		MaxAttempts: 4,
		Backoff:     100 * time.Millisecond,
		MaxBackoff:  time.Minute,
		Sleep:       recordingSleeper(&delays),
		OnAttempt: func(n int) error {
			attempts = append(attempts, n)
			return nil
		},
	}

	calls := 0
	result, err := p.Do(context.Background(), func(context.Context) (*Result, error) {
		calls++
		if calls < 3 {
			return nil, transientErr()
		}
		return &Result{Summary: "third time"}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "third time", result.Summary)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{2, 3}, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestRetryExhaustionIsPermanent(t *testing.T) {
	var delays []time.Duration
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, Sleep: recordingSleeper(&delays)}

	calls := 0
	_, err := p.Do(context.Background(), func(context.Context) (*Result, error) {
		calls++
		return nil, transientErr()
	})
	require.Error(t, err)

	assert.Equal(t, 3, calls, "attempt bound is exact")

	var derr *errors.DroverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, errors.ErrCodeAgentExhausted, derr.Code)
	assert.Equal(t, errors.ClassPermanent, derr.Class)
	assert.False(t, errors.IsTransient(err), "exhausted errors must not retrigger retries upstream")
}

func TestRetryPermanentFailureIsImmediate(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Millisecond, Sleep: recordingSleeper(&[]time.Duration{})}

	calls := 0
	_, err := p.Do(context.Background(), func(context.Context) (*Result, error) {
		calls++
		return nil, errors.New(errors.ErrCodeAgentFailed, "hopeless").WithClass(errors.ClassPermanent)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var derr *errors.DroverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, errors.ClassPermanent, derr.Class)
	assert.NotEqual(t, errors.ErrCodeAgentExhausted, derr.Code)
}

func TestRetryBackoffCapped(t *testing.T) {
	var delays []time.Duration
	p := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     10 * time.Millisecond,
		MaxBackoff:  25 * time.Millisecond,
		Sleep:       recordingSleeper(&delays),
	}

	_, err := p.Do(context.Background(), func(context.Context) (*Result, error) {
		return nil, transientErr()
	})
	require.Error(t, err)

	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		25 * time.Millisecond,
		25 * time.Millisecond,
	}, delays)
}

func TestRetryStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Millisecond, Sleep: recordingSleeper(&[]time.Duration{})}

	calls := 0
	_, err := p.Do(ctx, func(context.Context) (*Result, error) {
		calls++
		cancel()
		return nil, transientErr()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "no retry after the run context is cancelled")
}

func TestRetryOnAttemptErrorAborts(t *testing.T) {
	persistErr := errors.New(errors.ErrCodeStateWriteFailed, "disk full")
	p := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Sleep:       recordingSleeper(&[]time.Duration{}),
		OnAttempt:   func(int) error { return persistErr },
	}

	calls := 0
	_, err := p.Do(context.Background(), func(context.Context) (*Result, error) {
		calls++
		return nil, transientErr()
	})
	require.ErrorIs(t, err, persistErr)
	assert.Equal(t, 1, calls)
}
