package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

const (
	// DefaultMultipartThreshold is the declared size at or above which an
	// item is streamed as a multipart upload. Items with unknown size also
	// go multipart since they cannot be safely buffered.
	DefaultMultipartThreshold = 100 * 1024 * 1024

	// DefaultChunkSize is the multipart part size.
	DefaultChunkSize = 100 * 1024 * 1024

	// metadataMediaID is the object metadata key carrying the source media
	// identifier for idempotency checks.
	metadataMediaID = "source-media-id"
)

// TransferEngineConfig configures a TransferEngine.
type TransferEngineConfig struct {
	Provider driven.MediaProvider
	Objects  driven.ObjectStore
	Ledger   driven.Ledger
	Metrics  driven.MetricsEmitter
	Logger   *slog.Logger

	// MultipartThreshold and ChunkSize fall back to the 100 MiB defaults
	// when zero.
	MultipartThreshold int64
	ChunkSize          int64

	// Quality is the preferred download quality, "source" when empty.
	Quality     string
	Environment string
}

// TransferEngine moves one media item's bytes from the provider into the
// object store and records the outcome in the ledger.
type TransferEngine struct {
	provider  driven.MediaProvider
	objects   driven.ObjectStore
	ledger    driven.Ledger
	metrics   driven.MetricsEmitter
	logger    *slog.Logger
	threshold int64
	chunkSize int64
	quality   string
	env       string
}

// NewTransferEngine creates a TransferEngine.
func NewTransferEngine(cfg TransferEngineConfig) *TransferEngine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.MultipartThreshold
	if threshold <= 0 {
		threshold = DefaultMultipartThreshold
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	quality := cfg.Quality
	if quality == "" {
		quality = "source"
	}
	return &TransferEngine{
		provider:  cfg.Provider,
		objects:   cfg.Objects,
		ledger:    cfg.Ledger,
		metrics:   cfg.Metrics,
		logger:    logger,
		threshold: threshold,
		chunkSize: chunkSize,
		quality:   quality,
		env:       cfg.Environment,
	}
}

// Transfer moves one item. The returned result is always non-nil; err is
// non-nil only when the result status is failed, so callers can feed it to
// a retry policy.
func (t *TransferEngine) Transfer(ctx context.Context, creds *domain.Credentials, item *domain.MediaItem) (*domain.TransferResult, error) {
	start := time.Now()
	key := t.storageKey(item)
	logger := t.logger.With("media_id", item.ID, "key", key)

	// Idempotency check: an object at the key carrying this item's id
	// means a previous run already finished the upload.
	if info, err := t.objects.Head(ctx, key); err == nil {
		if info.Metadata[metadataMediaID] == item.ID {
			logger.Info("object already uploaded, skipping transfer")
			// Re-affirm COMPLETED so a stale FAILED row behind an existing
			// object converges instead of re-entering every diff.
			t.writeLedger(ctx, logger, item.ID, domain.SyncStatusCompleted, &domain.RecordAttrs{
				StorageKey: domain.String(key),
			})
			return &domain.TransferResult{
				MediaID:    item.ID,
				Status:     domain.TransferAlreadyUploaded,
				StorageKey: key,
				Duration:   time.Since(start),
			}, nil
		}
		logger.Warn("object exists with different source id, overwriting",
			"existing_id", info.Metadata[metadataMediaID])
	} else if !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("idempotency head check failed, proceeding with transfer", "error", err)
	}

	// IN_PROGRESS precedes any network transfer so a crash mid-stream is
	// observable on the next run.
	t.writeLedger(ctx, logger, item.ID, domain.SyncStatusInProgress, &domain.RecordAttrs{
		Provider:   domain.String(item.Provider),
		Filename:   domain.String(item.Filename),
		FileSize:   domain.Int64(item.Size),
		UploadDate: domain.String(item.UploadDate),
	})

	url, err := t.provider.ResolveDownloadURL(ctx, creds, item.ID, t.quality)
	if err != nil {
		if errors.Is(err, domain.ErrSourceDeleted) {
			return t.sourceDeleted(ctx, logger, item, key, start), nil
		}
		return t.fail(ctx, logger, item, start, fmt.Errorf("resolving download url: %w", err))
	}

	body, declared, ttfb, err := t.provider.Download(ctx, url)
	if err != nil {
		if errors.Is(err, domain.ErrSourceDeleted) {
			return t.sourceDeleted(ctx, logger, item, key, start), nil
		}
		return t.fail(ctx, logger, item, start, fmt.Errorf("opening download: %w", err))
	}
	defer body.Close()

	size := item.Size
	if size == 0 && declared > 0 {
		size = declared
	}

	metadata := map[string]string{
		metadataMediaID: item.ID,
		"filename":      item.Filename,
		"provider":      item.Provider,
	}

	var transferred int64
	if size == 0 || size >= t.threshold {
		transferred, err = t.multipartUpload(ctx, logger, key, body, metadata)
	} else {
		transferred, err = t.directUpload(ctx, key, body, metadata)
	}
	if err != nil {
		return t.fail(ctx, logger, item, start, err)
	}

	if size > 0 && transferred != size {
		logger.Warn("transferred size differs from declared size",
			"declared", size, "actual", transferred)
	}

	duration := time.Since(start)
	throughput := throughputMbps(transferred, duration)

	// A COMPLETED write failure on the success path surfaces as an error:
	// without the ledger row the item would be re-downloaded forever.
	now := time.Now().UTC()
	if err := t.ledger.Upsert(ctx, item.ID, domain.SyncStatusCompleted, &domain.RecordAttrs{
		StorageKey:       domain.String(key),
		BytesTransferred: domain.Int64(transferred),
		TransferDuration: domain.Float64(duration.Seconds()),
		ThroughputMbps:   domain.Float64(throughput),
		SyncTimestamp:    domain.Time(now),
	}); err != nil {
		return t.fail(ctx, logger, item, start, fmt.Errorf("recording completed transfer: %w", err))
	}

	t.metrics.Emit(
		driven.Metric{Name: "VideosSynced", Value: 1, Unit: driven.UnitCount, Dimensions: t.dims()},
		driven.Metric{Name: "BytesTransferred", Value: float64(transferred), Unit: driven.UnitBytes, Dimensions: t.dims()},
		driven.Metric{Name: "TransferDuration", Value: duration.Seconds(), Unit: driven.UnitSeconds, Dimensions: t.dims()},
		driven.Metric{Name: "TransferThroughput", Value: throughput, Unit: driven.UnitMbps, Dimensions: t.dims()},
		driven.Metric{Name: "TimeToFirstByte", Value: float64(ttfb.Milliseconds()), Unit: driven.UnitMilliseconds, Dimensions: t.dims()},
	)
	logger.Info("transfer complete",
		"bytes", transferred, "duration", duration, "throughput_mbps", fmt.Sprintf("%.2f", throughput))

	return &domain.TransferResult{
		MediaID:          item.ID,
		Status:           domain.TransferCompleted,
		StorageKey:       key,
		BytesTransferred: transferred,
		Duration:         duration,
		ThroughputMbps:   throughput,
		TimeToFirstByte:  ttfb,
	}, nil
}

// directUpload buffers the whole body and writes it as one object. The
// buffered length is authoritative, not the declared size.
func (t *TransferEngine) directUpload(ctx context.Context, key string, body io.Reader, metadata map[string]string) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("%w: reading download stream: %v", domain.ErrTransfer, err)
	}
	if err := t.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), metadata); err != nil {
		return 0, fmt.Errorf("%w: direct upload: %v", domain.ErrTransfer, err)
	}
	return int64(len(data)), nil
}

// multipartUpload streams the body in fixed-size parts. Any mid-stream
// failure aborts the session so the backend releases the stored parts.
func (t *TransferEngine) multipartUpload(ctx context.Context, logger *slog.Logger, key string, body io.Reader, metadata map[string]string) (int64, error) {
	uploadID, err := t.objects.CreateMultipart(ctx, key, metadata)
	if err != nil {
		return 0, fmt.Errorf("%w: creating multipart upload: %v", domain.ErrTransfer, err)
	}

	var (
		etags       []string
		transferred int64
		partNumber  int32
	)
	buf := make([]byte, t.chunkSize)
	for {
		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			partNumber++
			etag, upErr := t.objects.UploadPart(ctx, key, uploadID, partNumber, bytes.NewReader(buf[:n]), int64(n))
			if upErr != nil {
				t.abort(ctx, logger, key, uploadID)
				return transferred, fmt.Errorf("%w: uploading part %d: %v", domain.ErrTransfer, partNumber, upErr)
			}
			etags = append(etags, etag)
			transferred += int64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			t.abort(ctx, logger, key, uploadID)
			return transferred, fmt.Errorf("%w: reading download stream: %v", domain.ErrTransfer, readErr)
		}
	}

	if partNumber == 0 {
		// Zero-byte stream: nothing was uploaded, finish with an empty put.
		t.abort(ctx, logger, key, uploadID)
		if err := t.objects.Put(ctx, key, bytes.NewReader(nil), 0, metadata); err != nil {
			return 0, fmt.Errorf("%w: storing empty object: %v", domain.ErrTransfer, err)
		}
		return 0, nil
	}

	if err := t.objects.CompleteMultipart(ctx, key, uploadID, etags); err != nil {
		t.abort(ctx, logger, key, uploadID)
		return transferred, fmt.Errorf("%w: completing multipart upload: %v", domain.ErrTransfer, err)
	}
	return transferred, nil
}

func (t *TransferEngine) abort(ctx context.Context, logger *slog.Logger, key, uploadID string) {
	if err := t.objects.AbortMultipart(ctx, key, uploadID); err != nil {
		logger.Error("failed to abort multipart upload", "upload_id", uploadID, "error", err)
	}
}

// sourceDeleted resolves an item that vanished upstream: COMPLETED with a
// note, never FAILED. The item no longer needs transfer.
func (t *TransferEngine) sourceDeleted(ctx context.Context, logger *slog.Logger, item *domain.MediaItem, key string, start time.Time) *domain.TransferResult {
	logger.Info("source media deleted upstream, marking resolved")
	now := time.Now().UTC()
	t.writeLedger(ctx, logger, item.ID, domain.SyncStatusCompleted, &domain.RecordAttrs{
		Note:          domain.String(domain.NoteSourceDeleted),
		SyncTimestamp: domain.Time(now),
	})
	return &domain.TransferResult{
		MediaID:  item.ID,
		Status:   domain.TransferCompletedWithNote,
		Note:     domain.NoteSourceDeleted,
		Duration: time.Since(start),
	}
}

func (t *TransferEngine) fail(ctx context.Context, logger *slog.Logger, item *domain.MediaItem, start time.Time, err error) (*domain.TransferResult, error) {
	logger.Error("transfer failed", "error", err)

	retryCount := 0
	if rec, getErr := t.ledger.Get(ctx, item.ID); getErr == nil {
		retryCount = rec.RetryCount
	}
	t.writeLedger(ctx, logger, item.ID, domain.SyncStatusFailed, &domain.RecordAttrs{
		ErrorMessage: domain.String(err.Error()),
		RetryCount:   domain.Int(retryCount + 1),
	})

	dims := t.dims()
	dims["ErrorType"] = errorType(err)
	t.metrics.Emit(driven.Metric{Name: "SyncFailures", Value: 1, Unit: driven.UnitCount, Dimensions: dims})

	return &domain.TransferResult{
		MediaID:  item.ID,
		Status:   domain.TransferFailed,
		Duration: time.Since(start),
		Error:    err.Error(),
	}, err
}

// writeLedger upserts best effort: a failed write is logged, it never masks
// the transfer outcome.
func (t *TransferEngine) writeLedger(ctx context.Context, logger *slog.Logger, mediaID string, status domain.SyncStatus, attrs *domain.RecordAttrs) {
	if err := t.ledger.Upsert(ctx, mediaID, status, attrs); err != nil {
		logger.Error("ledger write failed", "status", string(status), "error", err)
	}
}

// storageKey partitions objects by provider and upload year/month:
// {provider}-videos/{YYYY}/{MM}/{filename}. Unparsable dates fall back to
// the current UTC month.
func (t *TransferEngine) storageKey(item *domain.MediaItem) string {
	ts, ok := item.UploadTime()
	if !ok {
		ts = time.Now().UTC()
	}
	return path.Join(
		fmt.Sprintf("%s-videos", item.Provider),
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		item.Filename,
	)
}

func (t *TransferEngine) dims() map[string]string {
	return map[string]string{
		"Provider":    t.provider.Name(),
		"Environment": t.env,
	}
}

func throughputMbps(transferred int64, duration time.Duration) float64 {
	if duration <= 0 || transferred <= 0 {
		return 0
	}
	return float64(transferred) * 8 / duration.Seconds() / 1e6
}

// errorType buckets an error for the failure metric's dimension.
func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return "TokenExpired"
	case errors.Is(err, domain.ErrQualityUnavailable):
		return "QualityUnavailable"
	case errors.Is(err, domain.ErrAPIStructureChanged):
		return "ApiStructureChanged"
	case errors.Is(err, domain.ErrTransfer):
		return "TransferError"
	}
	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		return "RateLimited"
	}
	var api *domain.APIError
	if errors.As(err, &api) {
		return "ApiError"
	}
	return "Unknown"
}
