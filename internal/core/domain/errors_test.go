package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRetryable_TerminalSentinels(t *testing.T) {
	for _, err := range []error{
		ErrTokenExpired,
		ErrQualityUnavailable,
		ErrAPIStructureChanged,
		ErrSourceDeleted,
		ErrCredentialsUnavailable,
	} {
		if IsRetryable(err) {
			t.Errorf("expected %v to be terminal", err)
		}
		wrapped := fmt.Errorf("listing page 2: %w", err)
		if IsRetryable(wrapped) {
			t.Errorf("expected wrapped %v to be terminal", err)
		}
	}
}

func TestIsRetryable_APIError(t *testing.T) {
	if IsRetryable(&APIError{StatusCode: 404, Message: "gone"}) {
		t.Error("404 should not be retryable")
	}
	if !IsRetryable(&APIError{StatusCode: 503, Message: "unavailable"}) {
		t.Error("503 should be retryable")
	}
	if !IsRetryable(&APIError{StatusCode: 429, Message: "slow down"}) {
		t.Error("429 should be retryable")
	}
}

func TestIsRetryable_RateLimit(t *testing.T) {
	err := &RateLimitError{RetryAfter: 5 * time.Second}
	if !IsRetryable(err) {
		t.Error("rate limit should be retryable")
	}
}

func TestIsRetryable_PlainErrors(t *testing.T) {
	if !IsRetryable(errors.New("connection reset by peer")) {
		t.Error("plain network error should default to retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil error is not retryable")
	}
}
