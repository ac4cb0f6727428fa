package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven/mocks"
	"github.com/driftwood-labs/driftsync/internal/retry"
)

type orchestratorFixture struct {
	orchestrator *Orchestrator
	provider     *mocks.MockProvider
	objects      *mocks.MockObjectStore
	ledger       *mocks.MockLedger
	notifier     *mocks.MockNotifier
	metrics      *mocks.MockMetrics
	credentials  *mocks.MockCredentialStore
}

func newOrchestratorFixture(provider *mocks.MockProvider) *orchestratorFixture {
	objects := mocks.NewMockObjectStore()
	ledger := mocks.NewMockLedger()
	notifier := mocks.NewMockNotifier()
	metrics := mocks.NewMockMetrics()
	credentials := mocks.NewMockCredentialStore()
	credentials.Seed(&domain.Credentials{
		Provider:  "gopro",
		Cookies:   "gp_access_token=t; gp_user_id=u",
		UserAgent: "ua",
	})

	validator := NewTokenValidator(TokenValidatorConfig{
		Credentials: credentials,
		Provider:    provider,
		Notifier:    notifier,
		Metrics:     metrics,
	})
	differ := NewDiffer(DifferConfig{Ledger: ledger, BatchRetryDelay: time.Millisecond})
	engine := NewTransferEngine(TransferEngineConfig{
		Provider: provider,
		Objects:  objects,
		Ledger:   ledger,
		Metrics:  metrics,
	})

	fastRetry := retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffRate: 2.0}
	orchestrator := NewOrchestrator(OrchestratorConfig{
		Validator:      validator,
		Differ:         differ,
		Transfers:      engine,
		Provider:       provider,
		Credentials:    credentials,
		Notifier:       notifier,
		Metrics:        metrics,
		StepRetryDelay: time.Millisecond,
		ItemRetry:      &fastRetry,
	})

	return &orchestratorFixture{
		orchestrator: orchestrator,
		provider:     provider,
		objects:      objects,
		ledger:       ledger,
		notifier:     notifier,
		metrics:      metrics,
		credentials:  credentials,
	}
}

// Scenario: three remote items, empty ledger, everything transfers.
func TestRun_FullSync(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.Items = mediaItems("a", "b", "c")
	provider.DownloadBody = "bytes"
	f := newOrchestratorFixture(provider)

	summary, err := f.orchestrator.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Outcome != domain.OutcomeSyncComplete {
		t.Fatalf("outcome = %q, want SyncComplete", summary.Outcome)
	}
	if summary.Transferred != 3 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}

	for _, id := range []string{"a", "b", "c"} {
		rec, err := f.ledger.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("ledger missing %q: %v", id, err)
		}
		if rec.Status != domain.SyncStatusCompleted {
			t.Errorf("%q status = %q", id, rec.Status)
		}
	}
}

// Scenario: everything already synced, transfer engine never runs.
func TestRun_NoNewVideos(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.Items = mediaItems("a", "b")
	provider.DownloadErr = errors.New("transfer engine must not be invoked")
	f := newOrchestratorFixture(provider)
	f.ledger.Seed(&domain.SyncRecord{MediaID: "a", Status: domain.SyncStatusCompleted})
	f.ledger.Seed(&domain.SyncRecord{MediaID: "b", Status: domain.SyncStatusCompleted})

	summary, err := f.orchestrator.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Outcome != domain.OutcomeNoNewVideos {
		t.Errorf("outcome = %q, want NoNewVideos", summary.Outcome)
	}
	if f.objects.PendingUploads() != 0 {
		t.Error("object store touched")
	}
}

// Scenario: expired credentials terminate the run before listing.
func TestRun_TokensInvalid(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.ProbeStatus = 401
	f := newOrchestratorFixture(provider)

	summary, err := f.orchestrator.Run(context.Background(), true)
	if err == nil {
		t.Fatal("expected run error")
	}
	if summary.Outcome != domain.OutcomeTokensInvalid {
		t.Errorf("outcome = %q, want TokensInvalid", summary.Outcome)
	}
	if len(f.provider.ListCalls()) != 0 {
		t.Error("listing must not run with invalid tokens")
	}

	alerts := f.notifier.Alerts()
	if len(alerts) != 1 || alerts[0].Severity != driven.SeverityHigh {
		t.Errorf("expected a single high-severity alert, got %+v", alerts)
	}
}

// Scenario: a deleted upstream item resolves with a note, not a failure.
func TestRun_SourceDeletedItem(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.Items = mediaItems("keep", "gone")
	provider.DownloadBody = "bytes"
	provider.ErrsByID = map[string]error{"gone": domain.ErrSourceDeleted}
	f := newOrchestratorFixture(provider)

	summary, err := f.orchestrator.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Outcome != domain.OutcomeSyncComplete {
		t.Errorf("outcome = %q", summary.Outcome)
	}
	if summary.SourceDeleted != 1 || summary.Transferred != 1 {
		t.Errorf("summary = %+v", summary)
	}

	rec, _ := f.ledger.Get(context.Background(), "gone")
	if rec.Status != domain.SyncStatusCompleted || rec.Note != domain.NoteSourceDeleted {
		t.Errorf("ledger record = %+v", rec)
	}
}

// One failing item never cancels its siblings; the run still completes
// with a partial-failure notification.
func TestRun_FanOutIsolation(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.Items = mediaItems("v1", "v2", "v3", "v4", "v5")
	provider.DownloadBody = "bytes"
	provider.ErrsByID = map[string]error{"v3": domain.ErrQualityUnavailable}
	f := newOrchestratorFixture(provider)

	summary, err := f.orchestrator.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("partial failure must not fail the run: %v", err)
	}
	if summary.Outcome != domain.OutcomePartialFailure {
		t.Fatalf("outcome = %q, want PartialFailureNotified", summary.Outcome)
	}
	if summary.Transferred != 4 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}

	// Every sibling reached a terminal ledger status.
	for _, id := range []string{"v1", "v2", "v4", "v5"} {
		rec, err := f.ledger.Get(context.Background(), id)
		if err != nil || rec.Status != domain.SyncStatusCompleted {
			t.Errorf("sibling %q not completed: %+v (%v)", id, rec, err)
		}
	}
	rec, _ := f.ledger.Get(context.Background(), "v3")
	if rec.Status != domain.SyncStatusFailed {
		t.Errorf("v3 status = %q, want FAILED", rec.Status)
	}

	alerts := f.notifier.Alerts()
	if len(alerts) != 1 || alerts[0].Severity != driven.SeverityMedium {
		t.Errorf("expected one medium-severity alert, got %+v", alerts)
	}
}

// Persistent listing failure is critical: retried, then alerted and failed.
func TestRun_ListingFailureIsCritical(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.ListErr = errors.New("upstream down")
	f := newOrchestratorFixture(provider)

	summary, err := f.orchestrator.Run(context.Background(), true)
	if err == nil {
		t.Fatal("expected run error")
	}
	if summary.Outcome != domain.OutcomeFailed {
		t.Errorf("outcome = %q, want SyncFailed", summary.Outcome)
	}
	if len(f.provider.ListCalls()) != 3 {
		t.Errorf("list attempts = %d, want 3", len(f.provider.ListCalls()))
	}

	alerts := f.notifier.Alerts()
	if len(alerts) != 1 || alerts[0].Severity != driven.SeverityHigh {
		t.Errorf("expected one high-severity alert, got %+v", alerts)
	}
}

// Transient per-item failures consume the item retry budget and succeed.
func TestRun_ItemRetryRecovers(t *testing.T) {
	provider := &flakyProvider{MockProvider: mocks.NewMockProvider("gopro"), failFirst: 1}
	provider.Items = mediaItems("v1")
	provider.DownloadBody = "bytes"
	f := newOrchestratorFixtureWith(provider)

	summary, err := f.orchestrator.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Outcome != domain.OutcomeSyncComplete {
		t.Errorf("outcome = %q, want SyncComplete after retry", summary.Outcome)
	}
}

// Exceeding the overall run deadline mid-transfer is a run-level failure
// with a high-severity alert, never a successful partial run.
func TestRun_DeadlineExceededIsCritical(t *testing.T) {
	provider := &stallingProvider{MockProvider: mocks.NewMockProvider("gopro")}
	provider.Items = mediaItems("v1", "v2")
	f := newOrchestratorFixtureWith(provider)
	f.orchestrator.runTimeout = 100 * time.Millisecond

	summary, err := f.orchestrator.Run(context.Background(), true)
	if err == nil {
		t.Fatal("expected run error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if summary.Outcome != domain.OutcomeFailed {
		t.Errorf("outcome = %q, want SyncFailed", summary.Outcome)
	}
	if summary.Outcome.Success() {
		t.Error("a timed-out run must not count as success")
	}

	alerts := f.notifier.Alerts()
	if len(alerts) != 1 || alerts[0].Severity != driven.SeverityHigh {
		t.Errorf("expected one high-severity alert, got %+v", alerts)
	}
}

// stallingProvider blocks every download until the run context dies.
type stallingProvider struct {
	*mocks.MockProvider
}

func (p *stallingProvider) Download(ctx context.Context, url string) (io.ReadCloser, int64, time.Duration, error) {
	<-ctx.Done()
	return nil, 0, 0, ctx.Err()
}

// Listing retries back off exponentially instead of hammering a struggling
// upstream on a fixed interval.
func TestRun_ListRetryBacksOff(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.ListErr = errors.New("upstream down")
	f := newOrchestratorFixture(provider)
	f.orchestrator.stepRetryDelay = 20 * time.Millisecond

	start := time.Now()
	_, err := f.orchestrator.Run(context.Background(), true)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected run error")
	}
	if got := len(f.provider.ListCalls()); got != 3 {
		t.Errorf("list attempts = %d, want 3", got)
	}
	// Doubling from the 20ms base gives 20ms + 40ms between attempts; a
	// fixed interval would finish in 40ms.
	if elapsed < 55*time.Millisecond {
		t.Errorf("run finished in %s, want at least 60ms of backoff", elapsed)
	}
}

// flakyProvider fails the first N download attempts with a transient error.
type flakyProvider struct {
	*mocks.MockProvider
	failFirst int
	calls     int
}

func (p *flakyProvider) Download(ctx context.Context, url string) (body io.ReadCloser, length int64, ttfb time.Duration, err error) {
	p.calls++
	if p.calls <= p.failFirst {
		return nil, 0, 0, errors.New("connection reset")
	}
	return p.MockProvider.Download(ctx, url)
}

func newOrchestratorFixtureWith(provider driven.MediaProvider) *orchestratorFixture {
	objects := mocks.NewMockObjectStore()
	ledger := mocks.NewMockLedger()
	notifier := mocks.NewMockNotifier()
	metrics := mocks.NewMockMetrics()
	credentials := mocks.NewMockCredentialStore()
	credentials.Seed(&domain.Credentials{
		Provider: "gopro",
		Cookies:  "gp_access_token=t; gp_user_id=u",
	})

	validator := NewTokenValidator(TokenValidatorConfig{
		Credentials: credentials,
		Provider:    provider,
		Notifier:    notifier,
		Metrics:     metrics,
	})
	differ := NewDiffer(DifferConfig{Ledger: ledger, BatchRetryDelay: time.Millisecond})
	engine := NewTransferEngine(TransferEngineConfig{
		Provider: provider,
		Objects:  objects,
		Ledger:   ledger,
		Metrics:  metrics,
	})
	fastRetry := retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffRate: 2.0}
	orchestrator := NewOrchestrator(OrchestratorConfig{
		Validator:      validator,
		Differ:         differ,
		Transfers:      engine,
		Provider:       provider,
		Credentials:    credentials,
		Notifier:       notifier,
		Metrics:        metrics,
		StepRetryDelay: time.Millisecond,
		ItemRetry:      &fastRetry,
	})
	return &orchestratorFixture{
		orchestrator: orchestrator,
		objects:      objects,
		ledger:       ledger,
		notifier:     notifier,
		metrics:      metrics,
		credentials:  credentials,
	}
}
