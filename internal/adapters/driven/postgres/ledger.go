package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Ledger = (*Ledger)(nil)

// Ledger implements driven.Ledger on PostgreSQL. Upserts merge via
// COALESCE so unset attributes keep their stored values.
type Ledger struct {
	db *DB
}

// NewLedger creates a PostgreSQL-backed Ledger.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// GetStatuses resolves statuses for a batch of ids in one query.
func (l *Ledger) GetStatuses(ctx context.Context, mediaIDs []string) (map[string]domain.SyncStatus, error) {
	statuses := make(map[string]domain.SyncStatus, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return statuses, nil
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT media_id, status FROM sync_records WHERE media_id = ANY($1)`,
		pq.Array(mediaIDs))
	if err != nil {
		return nil, fmt.Errorf("batched status lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scanning status row: %w", err)
		}
		statuses[id] = domain.SyncStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status rows: %w", err)
	}
	return statuses, nil
}

// Upsert creates or merges the record for mediaID. NULL attribute values
// leave the stored columns untouched.
func (l *Ledger) Upsert(ctx context.Context, mediaID string, status domain.SyncStatus, attrs *domain.RecordAttrs) error {
	if attrs == nil {
		attrs = &domain.RecordAttrs{}
	}

	var retryCount sql.NullInt64
	if attrs.RetryCount != nil {
		retryCount = sql.NullInt64{Int64: int64(*attrs.RetryCount), Valid: true}
	}

	query := `
		INSERT INTO sync_records (
			media_id, status, provider, filename, file_size, upload_date,
			storage_key, bytes_transferred, transfer_duration, throughput_mbps,
			error_message, retry_count, note, update_timestamp, sync_timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, 0), $13, now(), $14)
		ON CONFLICT (media_id) DO UPDATE SET
			status = EXCLUDED.status,
			provider = COALESCE($3, sync_records.provider),
			filename = COALESCE($4, sync_records.filename),
			file_size = COALESCE($5, sync_records.file_size),
			upload_date = COALESCE($6, sync_records.upload_date),
			storage_key = COALESCE($7, sync_records.storage_key),
			bytes_transferred = COALESCE($8, sync_records.bytes_transferred),
			transfer_duration = COALESCE($9, sync_records.transfer_duration),
			throughput_mbps = COALESCE($10, sync_records.throughput_mbps),
			error_message = COALESCE($11, sync_records.error_message),
			retry_count = COALESCE($12, sync_records.retry_count),
			note = COALESCE($13, sync_records.note),
			update_timestamp = now(),
			sync_timestamp = COALESCE($14, sync_records.sync_timestamp)
	`
	_, err := l.db.ExecContext(ctx, query,
		mediaID,
		string(status),
		NullString(attrs.Provider),
		NullString(attrs.Filename),
		NullInt64(attrs.FileSize),
		NullString(attrs.UploadDate),
		NullString(attrs.StorageKey),
		NullInt64(attrs.BytesTransferred),
		NullFloat64(attrs.TransferDuration),
		NullFloat64(attrs.ThroughputMbps),
		NullString(attrs.ErrorMessage),
		retryCount,
		NullString(attrs.Note),
		NullTime(attrs.SyncTimestamp),
	)
	if err != nil {
		return fmt.Errorf("upserting record %s: %w", mediaID, err)
	}
	return nil
}

// Get fetches a full record.
func (l *Ledger) Get(ctx context.Context, mediaID string) (*domain.SyncRecord, error) {
	query := `
		SELECT status, provider, filename, file_size, upload_date, storage_key,
		       bytes_transferred, transfer_duration, throughput_mbps,
		       error_message, retry_count, note, update_timestamp, sync_timestamp
		FROM sync_records WHERE media_id = $1
	`
	var (
		rec              = domain.SyncRecord{MediaID: mediaID}
		status           string
		provider         sql.NullString
		filename         sql.NullString
		fileSize         sql.NullInt64
		uploadDate       sql.NullString
		storageKey       sql.NullString
		bytesTransferred sql.NullInt64
		transferDuration sql.NullFloat64
		throughputMbps   sql.NullFloat64
		errorMessage     sql.NullString
		note             sql.NullString
		updateTS         sql.NullTime
		syncTS           sql.NullTime
	)
	err := l.db.QueryRowContext(ctx, query, mediaID).Scan(
		&status, &provider, &filename, &fileSize, &uploadDate, &storageKey,
		&bytesTransferred, &transferDuration, &throughputMbps,
		&errorMessage, &rec.RetryCount, &note, &updateTS, &syncTS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching record %s: %w", mediaID, err)
	}

	rec.Status = domain.SyncStatus(status)
	rec.Provider = provider.String
	rec.Filename = filename.String
	rec.FileSize = fileSize.Int64
	rec.UploadDate = uploadDate.String
	rec.StorageKey = storageKey.String
	rec.BytesTransferred = bytesTransferred.Int64
	rec.TransferDuration = transferDuration.Float64
	rec.ThroughputMbps = throughputMbps.Float64
	rec.ErrorMessage = errorMessage.String
	rec.Note = note.String
	rec.UpdateTimestamp = TimePtr(updateTS)
	rec.SyncTimestamp = TimePtr(syncTS)
	return &rec, nil
}

// CountByStatus reports row counts per status for operational queries.
func (l *Ledger) CountByStatus(ctx context.Context) (map[domain.SyncStatus]int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM sync_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.SyncStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[domain.SyncStatus(strings.TrimSpace(status))] = n
	}
	return counts, rows.Err()
}
