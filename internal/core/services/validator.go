package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// TokenValidatorConfig configures a TokenValidator.
type TokenValidatorConfig struct {
	Credentials driven.CredentialStore
	Provider    driven.MediaProvider
	Notifier    driven.Notifier
	Metrics     driven.MetricsEmitter
	Environment string
	Logger      *slog.Logger
}

// TokenValidator confirms the stored credentials still authorize provider
// calls without running the full listing flow. It probes with the minimal
// cookie projection first and falls back to the full header.
type TokenValidator struct {
	credentials driven.CredentialStore
	provider    driven.MediaProvider
	notifier    driven.Notifier
	metrics     driven.MetricsEmitter
	environment string
	logger      *slog.Logger
}

// NewTokenValidator creates a TokenValidator.
func NewTokenValidator(cfg TokenValidatorConfig) *TokenValidator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenValidator{
		credentials: cfg.Credentials,
		provider:    cfg.Provider,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		environment: cfg.Environment,
		logger:      logger,
	}
}

// Validate probes the provider with the stored credentials. On 401/403 from
// both projections it alerts and returns ErrTokenExpired; other failures
// return ErrValidationFailed, which the caller may retry.
func (v *TokenValidator) Validate(ctx context.Context) (*domain.ValidationResult, error) {
	start := time.Now()

	creds, err := v.credentials.Get(ctx, v.provider.Name())
	if err != nil {
		v.emitOutcome(false, time.Since(start))
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	age := creds.AgeDays(time.Now().UTC())
	if creds.LastUpdated == nil {
		v.logger.Warn("credentials have no last-updated timestamp, reporting age 0",
			"provider", creds.Provider)
	}
	v.logger.Info("validating credentials",
		"provider", creds.Provider, "age_days", fmt.Sprintf("%.2f", age))
	v.metrics.Emit(driven.Metric{
		Name:       "CookieAgeDays",
		Value:      age,
		Unit:       driven.UnitNone,
		Dimensions: v.dims(),
	})

	method := domain.ValidationMinimal
	lastStatus := 0

	if minimal, ok := creds.MinimalCookieHeader(); ok {
		status, probeErr := v.provider.Probe(ctx, minimal, creds.UserAgent)
		if probeErr == nil && success(status) {
			return v.succeed(method, age, time.Since(start))
		}
		if probeErr != nil {
			v.logger.Warn("minimal-projection probe failed", "error", probeErr)
		} else {
			v.logger.Warn("minimal-projection probe rejected", "status", status)
			lastStatus = status
		}
	} else {
		v.logger.Warn("credentials missing minimal projection cookies, using full header")
	}

	method = domain.ValidationFull
	status, probeErr := v.provider.Probe(ctx, creds.Cookies, creds.UserAgent)
	if probeErr == nil && success(status) {
		return v.succeed(method, age, time.Since(start))
	}
	if probeErr == nil {
		lastStatus = status
	}

	duration := time.Since(start)
	v.emitOutcome(false, duration)

	if lastStatus == 401 || lastStatus == 403 {
		v.logger.Error("credentials rejected by provider, manual refresh required",
			"provider", creds.Provider, "status", lastStatus)
		v.notify(ctx, creds.Provider, lastStatus, age)
		return nil, fmt.Errorf("probe returned %d: %w", lastStatus, domain.ErrTokenExpired)
	}
	if probeErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidationFailed, probeErr)
	}
	return nil, fmt.Errorf("%w: probe returned %d", domain.ErrValidationFailed, lastStatus)
}

func (v *TokenValidator) succeed(method domain.ValidationMethod, age float64, duration time.Duration) (*domain.ValidationResult, error) {
	v.logger.Info("credentials valid", "method", string(method), "duration", duration)
	v.emitOutcome(true, duration)
	return &domain.ValidationResult{
		Valid:    true,
		Method:   method,
		AgeDays:  age,
		Duration: duration,
	}, nil
}

func (v *TokenValidator) emitOutcome(ok bool, duration time.Duration) {
	name := "ValidationFailure"
	if ok {
		name = "ValidationSuccess"
	}
	v.metrics.Emit(
		driven.Metric{Name: name, Value: 1, Unit: driven.UnitCount, Dimensions: v.dims()},
		driven.Metric{Name: "ValidationDuration", Value: float64(duration.Milliseconds()), Unit: driven.UnitMilliseconds, Dimensions: v.dims()},
	)
}

func (v *TokenValidator) notify(ctx context.Context, provider string, status int, age float64) {
	err := v.notifier.Publish(ctx, driven.SeverityHigh,
		"Media sync: credentials expired, manual refresh required",
		map[string]any{
			"provider":            provider,
			"http_status":         status,
			"credential_age_days": age,
		})
	if err != nil {
		v.logger.Error("failed to publish expired-credentials alert", "error", err)
	}
}

func (v *TokenValidator) dims() map[string]string {
	return map[string]string{
		"Provider":    v.provider.Name(),
		"Environment": v.environment,
	}
}

func success(status int) bool {
	return status >= 200 && status < 300
}
