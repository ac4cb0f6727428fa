package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

const (
	// statusBatchSize bounds one ledger lookup round trip.
	statusBatchSize = 100

	// statusBatchAttempts caps retries for a failing batch before its ids
	// are treated as unknown.
	statusBatchAttempts = 3
)

// DifferConfig configures a Differ.
type DifferConfig struct {
	Ledger driven.Ledger
	Logger *slog.Logger

	// BatchRetryDelay is the initial backoff for a failed batch lookup.
	// Zero means one second.
	BatchRetryDelay time.Duration
}

// Differ computes the set of remote items not yet marked COMPLETED in the
// ledger. Unknown status (including batches that kept failing) counts as
// not synced, biasing toward re-transfer over missed items.
type Differ struct {
	ledger     driven.Ledger
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewDiffer creates a Differ.
func NewDiffer(cfg DifferConfig) *Differ {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.BatchRetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &Differ{ledger: cfg.Ledger, logger: logger, retryDelay: delay}
}

// Diff returns the items needing transfer: ledger status absent or not
// COMPLETED. IN_PROGRESS and FAILED items are included on every run so
// crashed and failed transfers self-heal.
func (d *Differ) Diff(ctx context.Context, items []*domain.MediaItem) []*domain.MediaItem {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	statuses := d.lookup(ctx, ids)

	var fresh []*domain.MediaItem
	for _, item := range items {
		if statuses[item.ID] == domain.SyncStatusCompleted {
			continue
		}
		fresh = append(fresh, item)
	}

	d.logger.Info("diff complete",
		"remote", len(items), "completed", len(items)-len(fresh), "new", len(fresh))
	return fresh
}

// lookup batches the ids and retries each failing batch with backoff. A
// batch that fails every attempt is omitted from the result.
func (d *Differ) lookup(ctx context.Context, ids []string) map[string]domain.SyncStatus {
	statuses := make(map[string]domain.SyncStatus, len(ids))

	for start := 0; start < len(ids); start += statusBatchSize {
		end := start + statusBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		delay := d.retryDelay
		for attempt := 1; ; attempt++ {
			got, err := d.ledger.GetStatuses(ctx, batch)
			if err == nil {
				for id, status := range got {
					statuses[id] = status
				}
				break
			}
			if attempt == statusBatchAttempts {
				d.logger.Warn("ledger batch lookup failed, treating batch as not synced",
					"batch_size", len(batch), "attempts", attempt, "error", err)
				break
			}
			d.logger.Warn("ledger batch lookup failed, retrying",
				"attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return statuses
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return statuses
}
