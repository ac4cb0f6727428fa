// Package retry implements bounded exponential backoff for provider and
// transfer calls. Policies are value types; the zero value is not usable,
// construct with one of the preset helpers or fill every field.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
)

// Policy bounds a retry loop. Delay for attempt n (1-based) is
// InitialDelay * BackoffRate^(n-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	BackoffRate  float64
	MaxDelay     time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil means domain.IsRetryable.
	Retryable func(error) bool
}

// TransferPolicy matches the download pipeline: three attempts, 30s base,
// doubling, capped at five minutes.
func TransferPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 30 * time.Second,
		BackoffRate:  2.0,
		MaxDelay:     300 * time.Second,
	}
}

// APIPolicy suits short control-plane calls: three attempts with a 2s base.
func APIPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		BackoffRate:  2.0,
		MaxDelay:     30 * time.Second,
	}
}

// Do runs fn until it succeeds, exhausts the policy, or hits a terminal
// error. A RateLimitError's server hint overrides the computed delay when
// longer. The last error is returned wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = domain.IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.delay(attempt)
		var rl *domain.RateLimitError
		if errors.As(lastErr, &rl) && rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.BackoffRate)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
