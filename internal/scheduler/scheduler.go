// Package scheduler drives periodic sync runs and credential rotation.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
)

// syncRunner is satisfied by services.Orchestrator.
type syncRunner interface {
	Run(ctx context.Context, scheduled bool) (*domain.RunSummary, error)
}

// credentialRotator is satisfied by services.Rotator.
type credentialRotator interface {
	Rotate(ctx context.Context) error
}

// Scheduler triggers sync runs and credential rotation on independent
// cadences. It is designed for a single instance; overlapping runs are
// prevented by running both jobs on one loop goroutine.
type Scheduler struct {
	sync    syncRunner
	rotator credentialRotator
	logger  *slog.Logger

	// Internal state
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	syncInterval     time.Duration
	rotationInterval time.Duration
	runOnStart       bool
}

// Config holds configuration for the scheduler.
type Config struct {
	Sync             syncRunner
	Rotator          credentialRotator // Optional: rotation is skipped when nil
	Logger           *slog.Logger
	SyncInterval     time.Duration // How often to run a sync (default: 24h)
	RotationInterval time.Duration // How often to rotate credentials (default: 720h)
	RunOnStart       bool          // Run a sync immediately when Start is called
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	syncInterval := cfg.SyncInterval
	if syncInterval == 0 {
		syncInterval = 24 * time.Hour
	}

	rotationInterval := cfg.RotationInterval
	if rotationInterval == 0 {
		rotationInterval = 720 * time.Hour
	}

	return &Scheduler{
		sync:             cfg.Sync,
		rotator:          cfg.Rotator,
		logger:           logger,
		syncInterval:     syncInterval,
		rotationInterval: rotationInterval,
		runOnStart:       cfg.RunOnStart,
	}
}

// Start begins the scheduling loop.
// It runs until Stop is called or the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting",
		"sync_interval", s.syncInterval,
		"rotation_interval", s.rotationInterval,
	)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler. An in-flight run is allowed to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// run is the main scheduling loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	syncTicker := time.NewTicker(s.syncInterval)
	defer syncTicker.Stop()

	rotationTicker := time.NewTicker(s.rotationInterval)
	defer rotationTicker.Stop()

	if s.runOnStart {
		s.runSync(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-syncTicker.C:
			s.runSync(ctx)
		case <-rotationTicker.C:
			s.runRotation(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	summary, err := s.sync.Run(ctx, true)
	if err != nil {
		s.logger.Error("scheduled sync run failed", "error", err)
		return
	}
	s.logger.Info("scheduled sync run finished",
		"execution_id", summary.ExecutionID,
		"outcome", summary.Outcome,
	)
}

func (s *Scheduler) runRotation(ctx context.Context) {
	if s.rotator == nil {
		return
	}
	if err := s.rotator.Rotate(ctx); err != nil {
		s.logger.Error("scheduled rotation failed", "error", err)
	}
}
