package domain

import "time"

// TransferStatus is the tagged outcome of one item's transfer attempt.
// Soft failures (source deleted upstream) and idempotent short-circuits are
// explicit variants, not exceptions in disguise.
type TransferStatus string

const (
	TransferCompleted         TransferStatus = "completed"
	TransferCompletedWithNote TransferStatus = "completed_with_note"
	TransferAlreadyUploaded   TransferStatus = "already_uploaded"
	TransferFailed            TransferStatus = "failed"
)

// TransferResult records the outcome of one Transfer Engine invocation.
type TransferResult struct {
	MediaID          string         `json:"media_id"`
	Status           TransferStatus `json:"status"`
	StorageKey       string         `json:"storage_key,omitempty"`
	BytesTransferred int64          `json:"bytes_transferred"`
	Duration         time.Duration  `json:"duration"`
	ThroughputMbps   float64        `json:"throughput_mbps,omitempty"`
	TimeToFirstByte  time.Duration  `json:"ttfb,omitempty"`
	Note             string         `json:"note,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// Succeeded reports whether the item reached a resolved state: transferred,
// already present, or confirmed gone upstream.
func (r *TransferResult) Succeeded() bool {
	return r.Status != TransferFailed
}

// RunOutcome is the terminal state of one orchestration run.
type RunOutcome string

const (
	OutcomeSyncComplete   RunOutcome = "SyncComplete"
	OutcomeNoNewVideos    RunOutcome = "NoNewVideos"
	OutcomePartialFailure RunOutcome = "PartialFailureNotified"
	OutcomeTokensInvalid  RunOutcome = "TokensInvalid"
	OutcomeFailed         RunOutcome = "SyncFailed"
)

// Terminal success vs failure: partial failures still complete the run; the
// failed items self-heal on the next schedule through the differ.
func (o RunOutcome) Success() bool {
	switch o {
	case OutcomeSyncComplete, OutcomeNoNewVideos, OutcomePartialFailure:
		return true
	}
	return false
}

// RunSummary aggregates one orchestration run for logging and alerting.
type RunSummary struct {
	ExecutionID   string            `json:"execution_id"`
	Outcome       RunOutcome        `json:"outcome"`
	StartTime     time.Time         `json:"start_time"`
	Duration      time.Duration     `json:"duration"`
	TotalListed   int               `json:"total_listed"`
	NewItems      int               `json:"new_items"`
	Transferred   int               `json:"transferred"`
	SourceDeleted int               `json:"source_deleted"`
	Failed        int               `json:"failed"`
	Results       []*TransferResult `json:"results,omitempty"`
	Error         string            `json:"error,omitempty"`
}
