package domain

import "time"

// SyncStatus represents the transfer state of one media item in the ledger
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "PENDING"
	SyncStatusInProgress SyncStatus = "IN_PROGRESS"
	SyncStatusCompleted  SyncStatus = "COMPLETED"
	SyncStatusFailed     SyncStatus = "FAILED"
)

// NoteSourceDeleted marks a record completed because the item vanished
// upstream before it could be transferred.
const NoteSourceDeleted = "source_deleted"

// SyncRecord is one ledger entry, keyed by media identifier. Records
// transition PENDING -> IN_PROGRESS -> {COMPLETED | FAILED}; FAILED re-enters
// IN_PROGRESS on a later run. The core never deletes a record.
type SyncRecord struct {
	MediaID          string     `json:"media_id"`
	Status           SyncStatus `json:"status"`
	Provider         string     `json:"provider,omitempty"`
	Filename         string     `json:"filename,omitempty"`
	FileSize         int64      `json:"file_size,omitempty"`
	UploadDate       string     `json:"upload_date,omitempty"`
	StorageKey       string     `json:"storage_key,omitempty"`
	BytesTransferred int64      `json:"bytes_transferred,omitempty"`
	TransferDuration float64    `json:"transfer_duration,omitempty"`
	ThroughputMbps   float64    `json:"throughput_mbps,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	RetryCount       int        `json:"retry_count,omitempty"`
	Note             string     `json:"note,omitempty"`
	UpdateTimestamp  *time.Time `json:"update_timestamp,omitempty"`
	SyncTimestamp    *time.Time `json:"sync_timestamp,omitempty"`
}

// CanTransition reports whether moving from the record's current status to
// next respects the monotonic lifecycle: COMPLETED is terminal within the
// core, FAILED may be retried, and anything may (re)enter IN_PROGRESS
// otherwise.
func (r *SyncRecord) CanTransition(next SyncStatus) bool {
	if r.Status == next {
		return true
	}
	switch r.Status {
	case SyncStatusCompleted:
		return false
	case SyncStatusFailed:
		return next == SyncStatusInProgress
	case SyncStatusInProgress:
		return next == SyncStatusCompleted || next == SyncStatusFailed
	case SyncStatusPending, "":
		return next == SyncStatusInProgress
	}
	return false
}

// RecordAttrs carries the partial attributes merged into a ledger record on
// upsert. Nil pointers leave the stored value untouched.
type RecordAttrs struct {
	Provider         *string
	Filename         *string
	FileSize         *int64
	UploadDate       *string
	StorageKey       *string
	BytesTransferred *int64
	TransferDuration *float64
	ThroughputMbps   *float64
	ErrorMessage     *string
	RetryCount       *int
	Note             *string
	SyncTimestamp    *time.Time
}

// Apply merges the attributes into a record, leaving unset fields alone.
func (a *RecordAttrs) Apply(r *SyncRecord) {
	if a == nil {
		return
	}
	if a.Provider != nil {
		r.Provider = *a.Provider
	}
	if a.Filename != nil {
		r.Filename = *a.Filename
	}
	if a.FileSize != nil {
		r.FileSize = *a.FileSize
	}
	if a.UploadDate != nil {
		r.UploadDate = *a.UploadDate
	}
	if a.StorageKey != nil {
		r.StorageKey = *a.StorageKey
	}
	if a.BytesTransferred != nil {
		r.BytesTransferred = *a.BytesTransferred
	}
	if a.TransferDuration != nil {
		r.TransferDuration = *a.TransferDuration
	}
	if a.ThroughputMbps != nil {
		r.ThroughputMbps = *a.ThroughputMbps
	}
	if a.ErrorMessage != nil {
		r.ErrorMessage = *a.ErrorMessage
	}
	if a.RetryCount != nil {
		r.RetryCount = *a.RetryCount
	}
	if a.Note != nil {
		r.Note = *a.Note
	}
	if a.SyncTimestamp != nil {
		r.SyncTimestamp = a.SyncTimestamp
	}
}

// Helpers for building RecordAttrs literals.

func String(s string) *string     { return &s }
func Int(i int) *int              { return &i }
func Int64(i int64) *int64        { return &i }
func Float64(f float64) *float64  { return &f }
func Time(t time.Time) *time.Time { return &t }
