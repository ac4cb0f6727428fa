package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Ledger = (*Ledger)(nil)

const (
	// recordPrefix namespaces ledger hashes.
	recordPrefix = "sync:record:"
)

// Ledger implements driven.Ledger on Redis: one hash per media id, batched
// status lookups via pipeline. Records have no TTL; the ledger is the
// durable memory of what has been transferred.
type Ledger struct {
	client *redis.Client
}

// NewLedger creates a Redis-backed Ledger.
func NewLedger(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

// GetStatuses resolves the status field of each id's hash in one pipeline
// round trip. Missing records are absent from the result.
func (l *Ledger) GetStatuses(ctx context.Context, mediaIDs []string) (map[string]domain.SyncStatus, error) {
	if len(mediaIDs) == 0 {
		return map[string]domain.SyncStatus{}, nil
	}

	pipe := l.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(mediaIDs))
	for _, id := range mediaIDs {
		cmds[id] = pipe.HGet(ctx, recordPrefix+id, "status")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("batched status lookup: %w", err)
	}

	statuses := make(map[string]domain.SyncStatus, len(mediaIDs))
	for id, cmd := range cmds {
		val, err := cmd.Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("status lookup for %s: %w", id, err)
		}
		statuses[id] = domain.SyncStatus(val)
	}
	return statuses, nil
}

// Upsert merges status and attributes into the record's hash and stamps
// update_timestamp. Fields absent from attrs keep their stored values.
func (l *Ledger) Upsert(ctx context.Context, mediaID string, status domain.SyncStatus, attrs *domain.RecordAttrs) error {
	fields := map[string]any{
		"status":           string(status),
		"update_timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	appendAttrs(fields, attrs)

	if err := l.client.HSet(ctx, recordPrefix+mediaID, fields).Err(); err != nil {
		return fmt.Errorf("upserting record %s: %w", mediaID, err)
	}
	return nil
}

// Get fetches a full record.
func (l *Ledger) Get(ctx context.Context, mediaID string) (*domain.SyncRecord, error) {
	values, err := l.client.HGetAll(ctx, recordPrefix+mediaID).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching record %s: %w", mediaID, err)
	}
	if len(values) == 0 {
		return nil, domain.ErrNotFound
	}
	return recordFromHash(mediaID, values), nil
}

func appendAttrs(fields map[string]any, attrs *domain.RecordAttrs) {
	if attrs == nil {
		return
	}
	if attrs.Provider != nil {
		fields["provider"] = *attrs.Provider
	}
	if attrs.Filename != nil {
		fields["filename"] = *attrs.Filename
	}
	if attrs.FileSize != nil {
		fields["file_size"] = strconv.FormatInt(*attrs.FileSize, 10)
	}
	if attrs.UploadDate != nil {
		fields["upload_date"] = *attrs.UploadDate
	}
	if attrs.StorageKey != nil {
		fields["storage_key"] = *attrs.StorageKey
	}
	if attrs.BytesTransferred != nil {
		fields["bytes_transferred"] = strconv.FormatInt(*attrs.BytesTransferred, 10)
	}
	if attrs.TransferDuration != nil {
		fields["transfer_duration"] = strconv.FormatFloat(*attrs.TransferDuration, 'f', -1, 64)
	}
	if attrs.ThroughputMbps != nil {
		fields["throughput_mbps"] = strconv.FormatFloat(*attrs.ThroughputMbps, 'f', -1, 64)
	}
	if attrs.ErrorMessage != nil {
		fields["error_message"] = *attrs.ErrorMessage
	}
	if attrs.RetryCount != nil {
		fields["retry_count"] = strconv.Itoa(*attrs.RetryCount)
	}
	if attrs.Note != nil {
		fields["note"] = *attrs.Note
	}
	if attrs.SyncTimestamp != nil {
		fields["sync_timestamp"] = attrs.SyncTimestamp.UTC().Format(time.RFC3339)
	}
}

func recordFromHash(mediaID string, values map[string]string) *domain.SyncRecord {
	rec := &domain.SyncRecord{
		MediaID:      mediaID,
		Status:       domain.SyncStatus(values["status"]),
		Provider:     values["provider"],
		Filename:     values["filename"],
		UploadDate:   values["upload_date"],
		StorageKey:   values["storage_key"],
		ErrorMessage: values["error_message"],
		Note:         values["note"],
	}
	rec.FileSize, _ = strconv.ParseInt(values["file_size"], 10, 64)
	rec.BytesTransferred, _ = strconv.ParseInt(values["bytes_transferred"], 10, 64)
	rec.TransferDuration, _ = strconv.ParseFloat(values["transfer_duration"], 64)
	rec.ThroughputMbps, _ = strconv.ParseFloat(values["throughput_mbps"], 64)
	rec.RetryCount, _ = strconv.Atoi(values["retry_count"])
	if ts, err := time.Parse(time.RFC3339, values["update_timestamp"]); err == nil {
		rec.UpdateTimestamp = &ts
	}
	if ts, err := time.Parse(time.RFC3339, values["sync_timestamp"]); err == nil {
		rec.SyncTimestamp = &ts
	}
	return rec
}
