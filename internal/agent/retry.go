package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/errors"
)

// Sleeper waits out a backoff delay. The default honors context
// cancellation; tests inject one that records delays instead.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy retries transient invocation failures with exponential
// backoff. Permanent, environment, and corrupt-state failures pass
// through on the first occurrence.
type RetryPolicy struct {
	// MaxAttempts bounds total invocations per feature per run.
	MaxAttempts int
	// Backoff is the delay before the second attempt; it doubles per
	// attempt up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration

	Sleep Sleeper

	// OnAttempt runs before each attempt after the first, so the caller
	// can persist the attempt count. An error here aborts the retry.
	OnAttempt func(attempt int) error
}

// PolicyFromConfig builds the retry policy the run config describes.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		Backoff:     cfg.RetryBackoff(),
		MaxBackoff:  cfg.RetryMaxBackoff(),
	}
}

// Do invokes fn until it succeeds, fails non-transiently, or the attempt
// bound is reached. Exhaustion converts the last transient failure into a
// permanent one so the loop marks the feature failed rather than spinning.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = defaultSleeper
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if p.OnAttempt != nil {
				if err := p.OnAttempt(attempt); err != nil {
					return nil, err
				}
			}
			if err := sleep(ctx, p.backoffFor(attempt)); err != nil {
				return nil, err
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !errors.IsTransient(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, errors.Wrap(errors.ErrCodeAgentExhausted,
		fmt.Sprintf("no successful agent session after %d attempts", attempts), lastErr).
		WithClass(errors.ClassPermanent).
		WithSuggestion("Inspect the last error and re-run; attempts reset per run")
}

// backoffFor returns the delay before the given attempt (2-based).
func (p RetryPolicy) backoffFor(attempt int) time.Duration {
	d := p.Backoff
	for i := 2; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
