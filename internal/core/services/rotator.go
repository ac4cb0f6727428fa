package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
	"github.com/driftwood-labs/driftsync/internal/retry"
)

// DefaultTokenMaxAge is how long a refreshed access token is considered
// fresh enough to skip another rotation.
const DefaultTokenMaxAge = 24 * time.Hour

// RotatorConfig configures a Rotator.
type RotatorConfig struct {
	Credentials driven.CredentialStore
	Provider    driven.MediaProvider
	Notifier    driven.Notifier
	Metrics     driven.MetricsEmitter
	Logger      *slog.Logger

	// RefreshRetry overrides the refresh retry policy; nil means the
	// standard API policy (3 attempts, backoff).
	RefreshRetry *retry.Policy

	// TokenMaxAge bounds the fresh-token shortcut; zero means 24h.
	TokenMaxAge time.Duration

	Environment string
}

// Rotator replaces stored credentials on its own schedule: refresh from the
// provider, probe-test the new material, then commit. The old credentials
// stay in place on any failure before the commit.
type Rotator struct {
	credentials driven.CredentialStore
	provider    driven.MediaProvider
	notifier    driven.Notifier
	metrics     driven.MetricsEmitter
	logger      *slog.Logger
	refresh     retry.Policy
	tokenMaxAge time.Duration
	env         string
}

// NewRotator creates a Rotator.
func NewRotator(cfg RotatorConfig) *Rotator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	refresh := retry.APIPolicy()
	if cfg.RefreshRetry != nil {
		refresh = *cfg.RefreshRetry
	}
	tokenMaxAge := cfg.TokenMaxAge
	if tokenMaxAge <= 0 {
		tokenMaxAge = DefaultTokenMaxAge
	}
	return &Rotator{
		credentials: cfg.Credentials,
		provider:    cfg.Provider,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		logger:      logger,
		refresh:     refresh,
		tokenMaxAge: tokenMaxAge,
		env:         cfg.Environment,
	}
}

// Rotate performs one rotation. A token refreshed within TokenMaxAge is
// reused as-is and the rotation is skipped; otherwise metrics and a
// notification are published on every outcome.
func (r *Rotator) Rotate(ctx context.Context) error {
	start := time.Now()
	provider := r.provider.Name()
	r.logger.Info("credential rotation starting", "provider", provider)

	rotated, err := r.rotate(ctx)
	duration := time.Since(start)

	if err == nil && !rotated {
		r.logger.Info("access token still fresh, rotation skipped",
			"provider", provider, "max_age", r.tokenMaxAge)
		return nil
	}

	outcome := "RotationSuccess"
	if err != nil {
		outcome = "RotationFailure"
	}
	r.metrics.Emit(
		driven.Metric{Name: outcome, Value: 1, Unit: driven.UnitCount, Dimensions: r.dims()},
		driven.Metric{Name: "RotationDuration", Value: duration.Seconds(), Unit: driven.UnitSeconds, Dimensions: r.dims()},
	)

	if err != nil {
		r.logger.Error("credential rotation failed", "provider", provider, "error", err)
		r.notify(ctx, driven.SeverityHigh, "Media sync: credential rotation failed", map[string]any{
			"provider":    provider,
			"environment": r.env,
			"error":       err.Error(),
		})
		return err
	}

	r.logger.Info("credential rotation complete", "provider", provider, "duration", duration)
	r.notify(ctx, driven.SeverityLow, "Media sync: credentials rotated", map[string]any{
		"provider":    provider,
		"environment": r.env,
		"duration":    duration.String(),
	})
	return nil
}

// rotate runs the refresh, verify, commit sequence. rotated is false when
// the current token was fresh enough to reuse without a refresh round trip.
func (r *Rotator) rotate(ctx context.Context) (rotated bool, err error) {
	current, err := r.credentials.Get(ctx, r.provider.Name())
	if err != nil {
		return false, fmt.Errorf("loading current credentials: %w", err)
	}

	if current.TokenFresh(time.Now().UTC(), r.tokenMaxAge) {
		return false, nil
	}

	var refreshed *domain.Credentials
	if err := r.refresh.Do(ctx, func(ctx context.Context) error {
		var refreshErr error
		refreshed, refreshErr = r.provider.Refresh(ctx, current)
		return refreshErr
	}); err != nil {
		return false, fmt.Errorf("refreshing credentials: %w", err)
	}

	now := time.Now().UTC()
	refreshed.LastUpdated = &now
	refreshed.LastRotated = &now
	refreshed.RotationCount = current.RotationCount + 1

	// Probe-test before committing so broken material never replaces
	// working credentials.
	header, ok := refreshed.MinimalCookieHeader()
	if !ok {
		header = refreshed.Cookies
	}
	status, err := r.provider.Probe(ctx, header, refreshed.UserAgent)
	if err != nil {
		return false, fmt.Errorf("verifying refreshed credentials: %w", err)
	}
	if !success(status) {
		return false, fmt.Errorf("refreshed credentials rejected with status %d: %w", status, domain.ErrValidationFailed)
	}

	if err := r.credentials.Put(ctx, refreshed); err != nil {
		r.logger.Error("storing refreshed credentials failed, rolling back", "error", err)
		if rbErr := r.credentials.Put(ctx, current); rbErr != nil {
			r.logger.Error("rollback to previous credentials failed", "error", rbErr)
			r.notify(ctx, driven.SeverityCritical,
				"Media sync: credential rollback failed, store state unknown",
				map[string]any{
					"provider":    r.provider.Name(),
					"environment": r.env,
					"store_error": err.Error(),
					"rollback":    rbErr.Error(),
				})
		}
		return false, fmt.Errorf("storing refreshed credentials: %w", err)
	}

	r.logger.Info("credentials stored",
		"rotation_count", refreshed.RotationCount, "provider", refreshed.Provider)
	return true, nil
}

func (r *Rotator) notify(ctx context.Context, severity driven.AlertSeverity, subject string, body map[string]any) {
	if err := r.notifier.Publish(ctx, severity, subject, body); err != nil {
		r.logger.Error("failed to publish rotation alert", "error", err)
	}
}

func (r *Rotator) dims() map[string]string {
	return map[string]string{
		"Provider":    r.provider.Name(),
		"Environment": r.env,
	}
}
