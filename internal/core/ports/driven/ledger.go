package driven

import (
	"context"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
)

// Ledger persists per-item sync state, keyed by media identifier.
// Implementations must tolerate concurrent writers: the transfer engine
// fans out and each worker upserts its own item.
type Ledger interface {
	// GetStatuses resolves the sync status of a batch of media IDs in one
	// round trip where the backend allows it. IDs absent from the returned
	// map have no ledger record.
	GetStatuses(ctx context.Context, mediaIDs []string) (map[string]domain.SyncStatus, error)

	// Upsert creates or updates the record for mediaID, setting status and
	// merging attrs. Nil attrs updates status alone. Implementations stamp
	// the update timestamp themselves.
	Upsert(ctx context.Context, mediaID string, status domain.SyncStatus, attrs *domain.RecordAttrs) error

	// Get fetches a single record. Returns domain.ErrNotFound when no
	// record exists for mediaID.
	Get(ctx context.Context, mediaID string) (*domain.SyncRecord, error)
}
