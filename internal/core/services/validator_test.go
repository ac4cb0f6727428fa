package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven/mocks"
)

func validatorFixture(provider *mocks.MockProvider) (*TokenValidator, *mocks.MockCredentialStore, *mocks.MockNotifier, *mocks.MockMetrics) {
	store := mocks.NewMockCredentialStore()
	updated := time.Now().UTC().Add(-72 * time.Hour)
	store.Seed(&domain.Credentials{
		Provider:    "gopro",
		Cookies:     "gp_access_token=tok; gp_user_id=u1; session=s",
		UserAgent:   "ua",
		LastUpdated: &updated,
	})
	notifier := mocks.NewMockNotifier()
	metrics := mocks.NewMockMetrics()
	v := NewTokenValidator(TokenValidatorConfig{
		Credentials: store,
		Provider:    provider,
		Notifier:    notifier,
		Metrics:     metrics,
		Environment: "test",
	})
	return v, store, notifier, metrics
}

func TestValidate_MinimalProjectionSucceeds(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	v, _, _, metrics := validatorFixture(provider)

	result, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid || result.Method != domain.ValidationMinimal {
		t.Errorf("result = %+v, want valid via minimal", result)
	}

	headers := provider.ProbeHeaders()
	if len(headers) != 1 {
		t.Fatalf("probes = %d, want 1", len(headers))
	}
	if headers[0] != "gp_access_token=tok; gp_user_id=u1" {
		t.Errorf("minimal probe header = %q", headers[0])
	}
	if len(metrics.Find("ValidationSuccess")) != 1 {
		t.Error("ValidationSuccess not emitted")
	}
	if len(metrics.Find("CookieAgeDays")) != 1 {
		t.Error("CookieAgeDays not emitted")
	}
}

func TestValidate_FallsBackToFullHeader(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.ProbeStatuses = []int{401, 200}
	v, _, _, _ := validatorFixture(provider)

	result, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != domain.ValidationFull {
		t.Errorf("method = %q, want full", result.Method)
	}

	// Minimal projection must be probed strictly before the full header.
	headers := provider.ProbeHeaders()
	if len(headers) != 2 {
		t.Fatalf("probes = %d, want 2", len(headers))
	}
	if !strings.HasPrefix(headers[0], "gp_access_token=") || strings.Contains(headers[0], "session=") {
		t.Errorf("first probe was not the minimal projection: %q", headers[0])
	}
	if !strings.Contains(headers[1], "session=s") {
		t.Errorf("second probe was not the full header: %q", headers[1])
	}
}

func TestValidate_ExpiredTokensAlert(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.ProbeStatus = 401
	v, _, notifier, metrics := validatorFixture(provider)

	_, err := v.Validate(context.Background())
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	alerts := notifier.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != driven.SeverityHigh {
		t.Errorf("severity = %q, want high", alerts[0].Severity)
	}
	if len(metrics.Find("ValidationFailure")) != 1 {
		t.Error("ValidationFailure not emitted")
	}
}

func TestValidate_NetworkFailureIsTransient(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.ProbeErr = errors.New("connection refused")
	v, _, notifier, _ := validatorFixture(provider)

	_, err := v.Validate(context.Background())
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if notifier.Count() != 0 {
		t.Error("transient failure must not alert")
	}
}

func TestValidate_MissingCredentials(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	store := mocks.NewMockCredentialStore()
	v := NewTokenValidator(TokenValidatorConfig{
		Credentials: store,
		Provider:    provider,
		Notifier:    mocks.NewMockNotifier(),
		Metrics:     mocks.NewMockMetrics(),
	})

	_, err := v.Validate(context.Background())
	if !errors.Is(err, domain.ErrCredentialsUnavailable) {
		t.Errorf("expected ErrCredentialsUnavailable, got %v", err)
	}
}
