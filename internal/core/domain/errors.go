package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrCredentialsUnavailable indicates the credential store is unreachable
	// or holds no record for the provider
	ErrCredentialsUnavailable = errors.New("credentials unavailable")

	// ErrTokenExpired indicates the stored provider credentials no longer
	// authorize API calls and manual remediation is required
	ErrTokenExpired = errors.New("token expired")

	// ErrValidationFailed indicates a transient credential-check failure;
	// the run may be retried on the next schedule
	ErrValidationFailed = errors.New("credential validation failed")

	// ErrAPIStructureChanged indicates a 200 listing response is missing
	// fields the contract requires - the provider API may have drifted
	ErrAPIStructureChanged = errors.New("provider API structure changed")

	// ErrQualityUnavailable indicates no download URL exists for any of the
	// acceptable quality levels
	ErrQualityUnavailable = errors.New("requested quality unavailable")

	// ErrSourceDeleted indicates the item no longer exists upstream; the
	// transfer engine records it as resolved, not failed
	ErrSourceDeleted = errors.New("source media deleted")

	// ErrTransfer indicates a network or size failure during download/upload
	ErrTransfer = errors.New("transfer failed")

	// ErrProviderNotRegistered indicates an unknown provider name
	ErrProviderNotRegistered = errors.New("provider not registered")
)

// APIError carries the HTTP status of a failed provider call so callers can
// decide whether the failure is retryable.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status indicates a transient condition.
// Rate limits and server errors are retried; other client errors are not.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// RateLimitError indicates the provider returned 429. RetryAfter carries the
// server's hint when present, zero otherwise.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// IsRetryable reports whether err represents a transient condition that a
// later attempt could clear. Terminal conditions (expired tokens, missing
// qualities, contract drift, deleted sources) are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrQualityUnavailable),
		errors.Is(err, ErrAPIStructureChanged),
		errors.Is(err, ErrSourceDeleted),
		errors.Is(err, ErrCredentialsUnavailable):
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Plain network and transfer failures are assumed transient.
	return true
}
