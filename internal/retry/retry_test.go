package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		BackoffRate:  2.0,
		MaxDelay:     10 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	underlying := errors.New("still down")
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return underlying
	})
	if !errors.Is(err, underlying) {
		t.Errorf("expected wrapped underlying error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_TerminalErrorStopsImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return domain.ErrTokenExpired
	})
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected token expired, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on terminal error)", calls)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, InitialDelay: time.Hour, BackoffRate: 2.0}

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(ctx context.Context) error {
			return errors.New("transient")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDo_RateLimitHintExtendsDelay(t *testing.T) {
	p := Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffRate: 2.0}
	start := time.Now()
	calls := 0
	_ = p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &domain.RateLimitError{RetryAfter: 50 * time.Millisecond}
		}
		return nil
	})
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("retry honored %v, want at least the 50ms server hint", elapsed)
	}
}

func TestDelayProgression(t *testing.T) {
	p := Policy{
		MaxAttempts:  5,
		InitialDelay: 30 * time.Second,
		BackoffRate:  2.0,
		MaxDelay:     300 * time.Second,
	}
	want := []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second, 240 * time.Second}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Errorf("delay(%d) = %s, want %s", i+1, got, w)
		}
	}
	if got := p.delay(5); got != 300*time.Second {
		t.Errorf("delay(5) = %s, want cap 300s", got)
	}
}
