package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
	"github.com/driftwood-labs/driftsync/internal/retry"
)

const (
	// DefaultConcurrency bounds the transfer fan-out; small on purpose to
	// respect upstream rate limits.
	DefaultConcurrency = 5

	// DefaultRunTimeout bounds one full orchestration run.
	DefaultRunTimeout = 12 * time.Hour
)

// transferrer is the slice of TransferEngine the orchestrator depends on.
type transferrer interface {
	Transfer(ctx context.Context, creds *domain.Credentials, item *domain.MediaItem) (*domain.TransferResult, error)
}

// validator is the slice of TokenValidator the orchestrator depends on.
type validator interface {
	Validate(ctx context.Context) (*domain.ValidationResult, error)
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Validator   validator
	Differ      *Differ
	Transfers   transferrer
	Provider    driven.MediaProvider
	Credentials driven.CredentialStore
	Notifier    driven.Notifier
	Metrics     driven.MetricsEmitter
	Logger      *slog.Logger

	// Concurrency bounds the transfer fan-out; zero means 5.
	Concurrency int

	// RunTimeout bounds one run; zero means 12h.
	RunTimeout time.Duration

	// PageSize and MaxResults bound the listing pass; zero means provider
	// defaults / unbounded.
	PageSize   int
	MaxResults int

	// StepRetryDelay is the base interval for validation and listing
	// retries; zero means 2s. Validation retries on a fixed interval,
	// listing backs off exponentially. Transfers use the transfer retry
	// policy.
	StepRetryDelay time.Duration

	// ItemRetry overrides the per-item retry policy; nil means the
	// standard transfer policy (3 attempts, 30s base, capped 300s).
	ItemRetry *retry.Policy

	Environment string
}

// Orchestrator drives one sync run end to end: validate, list, diff, fan
// out transfers, summarize, alert.
type Orchestrator struct {
	validator   validator
	differ      *Differ
	transfers   transferrer
	provider    driven.MediaProvider
	credentials driven.CredentialStore
	notifier    driven.Notifier
	metrics     driven.MetricsEmitter
	logger      *slog.Logger

	concurrency    int
	runTimeout     time.Duration
	pageSize       int
	maxResults     int
	stepRetryDelay time.Duration
	itemRetry      retry.Policy
	env            string
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	stepDelay := cfg.StepRetryDelay
	if stepDelay <= 0 {
		stepDelay = 2 * time.Second
	}
	itemRetry := retry.TransferPolicy()
	if cfg.ItemRetry != nil {
		itemRetry = *cfg.ItemRetry
	}
	return &Orchestrator{
		validator:      cfg.Validator,
		differ:         cfg.Differ,
		transfers:      cfg.Transfers,
		provider:       cfg.Provider,
		credentials:    cfg.Credentials,
		notifier:       cfg.Notifier,
		metrics:        cfg.Metrics,
		logger:         logger,
		concurrency:    concurrency,
		runTimeout:     runTimeout,
		pageSize:       cfg.PageSize,
		maxResults:     cfg.MaxResults,
		stepRetryDelay: stepDelay,
		itemRetry:      itemRetry,
		env:            cfg.Environment,
	}
}

// Run executes one sync run. The summary is always non-nil; err is non-nil
// only for run-level failures (expired tokens, persistent validation or
// listing failures, timeout).
func (o *Orchestrator) Run(ctx context.Context, scheduled bool) (*domain.RunSummary, error) {
	exec := domain.NewExecutionContext(scheduled)
	ctx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	logger := o.logger.With("execution_id", exec.CorrelationID)
	logger.Info("sync run starting", "scheduled", scheduled)

	summary := &domain.RunSummary{
		ExecutionID: exec.CorrelationID,
		StartTime:   exec.StartTime,
	}

	// Step 1: validate credentials. TokenExpired is terminal; other
	// failures are retried on a fixed interval.
	if err := o.stepWithRetry(ctx, "validate", o.validatePolicy(), func(ctx context.Context) error {
		_, err := o.validator.Validate(ctx)
		return err
	}); err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			// The validator already alerted with full context.
			return o.finish(ctx, logger, summary, domain.OutcomeTokensInvalid, err, false)
		}
		return o.finish(ctx, logger, summary, domain.OutcomeFailed, fmt.Errorf("validation: %w", err), true)
	}

	creds, err := o.credentials.Get(ctx, o.provider.Name())
	if err != nil {
		return o.finish(ctx, logger, summary, domain.OutcomeFailed, fmt.Errorf("loading credentials: %w", err), true)
	}

	// Step 2: list remote media, backing off between attempts.
	var items []*domain.MediaItem
	if err := o.stepWithRetry(ctx, "list", o.listPolicy(), func(ctx context.Context) error {
		var listErr error
		items, _, listErr = o.provider.List(ctx, creds, driven.ListOptions{
			PageSize:   o.pageSize,
			MaxResults: o.maxResults,
		})
		return listErr
	}); err != nil {
		return o.finish(ctx, logger, summary, domain.OutcomeFailed, fmt.Errorf("listing media: %w", err), true)
	}
	summary.TotalListed = len(items)

	// Step 3: diff against the ledger.
	fresh := o.differ.Diff(ctx, items)
	summary.NewItems = len(fresh)
	if len(fresh) == 0 {
		logger.Info("no new media to sync")
		return o.finish(ctx, logger, summary, domain.OutcomeNoNewVideos, nil, false)
	}

	// Step 4: bounded fan-out. Each item's outcome is captured
	// independently; one failure never cancels siblings.
	summary.Results = o.fanOut(ctx, logger, creds, fresh)

	for _, res := range summary.Results {
		switch res.Status {
		case domain.TransferCompleted, domain.TransferAlreadyUploaded:
			summary.Transferred++
		case domain.TransferCompletedWithNote:
			summary.SourceDeleted++
		case domain.TransferFailed:
			summary.Failed++
		}
	}

	// A dead run context means the fan-out was cut short by the overall
	// deadline or a caller cancel; that is a run-level failure, never a
	// partial one.
	if ctx.Err() != nil {
		return o.finish(ctx, logger, summary, domain.OutcomeFailed, fmt.Errorf("run deadline exceeded: %w", ctx.Err()), true)
	}

	if summary.Failed > 0 {
		o.notifyPartialFailure(ctx, logger, summary)
		return o.finish(ctx, logger, summary, domain.OutcomePartialFailure, nil, false)
	}
	return o.finish(ctx, logger, summary, domain.OutcomeSyncComplete, nil, false)
}

// stepWithRetry retries a pipeline stage under the given policy. Terminal
// errors stop immediately.
func (o *Orchestrator) stepWithRetry(ctx context.Context, name string, p retry.Policy, fn func(ctx context.Context) error) error {
	err := p.Do(ctx, fn)
	if err != nil {
		o.logger.Error("pipeline step failed", "step", name, "error", err)
	}
	return err
}

// validatePolicy retries validation on a fixed interval; a credential store
// blip clears quickly or not at all.
func (o *Orchestrator) validatePolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  3,
		InitialDelay: o.stepRetryDelay,
		BackoffRate:  1.0,
		MaxDelay:     o.stepRetryDelay,
	}
}

// listPolicy backs off exponentially; listing failures are usually upstream
// load, which fixed-interval retries make worse.
func (o *Orchestrator) listPolicy() retry.Policy {
	p := retry.APIPolicy()
	p.InitialDelay = o.stepRetryDelay
	return p
}

func (o *Orchestrator) fanOut(ctx context.Context, logger *slog.Logger, creds *domain.Credentials, items []*domain.MediaItem) []*domain.TransferResult {
	results := make([]*domain.TransferResult, len(items))
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item *domain.MediaItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = o.transferWithRetry(ctx, creds, item)
		}(i, item)
	}
	wg.Wait()

	logger.Info("fan-out complete", "items", len(items))
	return results
}

// transferWithRetry applies the per-item retry policy around the transfer
// engine. Only transient errors are retried; the last result wins.
func (o *Orchestrator) transferWithRetry(ctx context.Context, creds *domain.Credentials, item *domain.MediaItem) *domain.TransferResult {
	var last *domain.TransferResult
	err := o.itemRetry.Do(ctx, func(ctx context.Context) error {
		res, err := o.transfers.Transfer(ctx, creds, item)
		last = res
		return err
	})
	if last == nil {
		// Context died before the first attempt finished.
		last = &domain.TransferResult{
			MediaID: item.ID,
			Status:  domain.TransferFailed,
			Error:   err.Error(),
		}
	}
	return last
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, summary *domain.RunSummary, outcome domain.RunOutcome, runErr error, critical bool) (*domain.RunSummary, error) {
	summary.Outcome = outcome
	summary.Duration = time.Since(summary.StartTime)
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	logger.Info("sync run finished",
		"outcome", string(outcome),
		"duration", summary.Duration,
		"listed", summary.TotalListed,
		"new", summary.NewItems,
		"transferred", summary.Transferred,
		"source_deleted", summary.SourceDeleted,
		"failed", summary.Failed)

	if critical {
		o.notifyCriticalFailure(ctx, logger, summary)
	}
	return summary, runErr
}

func (o *Orchestrator) notifyPartialFailure(ctx context.Context, logger *slog.Logger, summary *domain.RunSummary) {
	err := o.notifier.Publish(ctx, driven.SeverityMedium,
		"Media sync: run completed with failed items",
		map[string]any{
			"execution_id": summary.ExecutionID,
			"environment":  o.env,
			"transferred":  summary.Transferred,
			"failed":       summary.Failed,
			"note":         "failed items retry on the next scheduled run",
		})
	if err != nil {
		logger.Error("failed to publish partial-failure alert", "error", err)
	}
}

func (o *Orchestrator) notifyCriticalFailure(ctx context.Context, logger *slog.Logger, summary *domain.RunSummary) {
	// The run context may already be past its deadline here; the alert
	// still has to go out.
	ctx = context.WithoutCancel(ctx)
	err := o.notifier.Publish(ctx, driven.SeverityHigh,
		"Media sync: run failed",
		map[string]any{
			"execution_id": summary.ExecutionID,
			"environment":  o.env,
			"error":        summary.Error,
		})
	if err != nil {
		logger.Error("failed to publish critical-failure alert", "error", err)
	}
}
