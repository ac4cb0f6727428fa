package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven/mocks"
)

func transferFixture(provider *mocks.MockProvider, threshold, chunk int64) (*TransferEngine, *mocks.MockObjectStore, *mocks.MockLedger, *mocks.MockMetrics) {
	objects := mocks.NewMockObjectStore()
	ledger := mocks.NewMockLedger()
	metrics := mocks.NewMockMetrics()
	engine := NewTransferEngine(TransferEngineConfig{
		Provider:           provider,
		Objects:            objects,
		Ledger:             ledger,
		Metrics:            metrics,
		MultipartThreshold: threshold,
		ChunkSize:          chunk,
		Environment:        "test",
	})
	return engine, objects, ledger, metrics
}

func transferCreds() *domain.Credentials {
	return &domain.Credentials{Provider: "gopro", Cookies: "gp_access_token=t; gp_user_id=u"}
}

func videoItem(id string, size int64) *domain.MediaItem {
	return &domain.MediaItem{
		ID:          id,
		Filename:    id + ".MP4",
		DownloadURL: "https://api.test/media/" + id + "/download",
		Size:        size,
		UploadDate:  "2026-03-15T10:00:00Z",
		Provider:    "gopro",
	}
}

func TestTransfer_DirectUpload(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.DownloadBody = "hello world"
	engine, objects, ledger, metrics := transferFixture(provider, 1024, 512)

	item := videoItem("m1", 11)
	res, err := engine.Transfer(context.Background(), transferCreds(), item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.TransferCompleted {
		t.Fatalf("status = %q, want completed", res.Status)
	}
	if res.StorageKey != "gopro-videos/2026/03/m1.MP4" {
		t.Errorf("storage key = %q", res.StorageKey)
	}

	data, metadata, ok := objects.Object(res.StorageKey)
	if !ok {
		t.Fatal("object not stored")
	}
	if string(data) != "hello world" {
		t.Errorf("stored bytes = %q", data)
	}
	if metadata["source-media-id"] != "m1" {
		t.Errorf("identity metadata = %q", metadata["source-media-id"])
	}

	rec, err := ledger.Get(context.Background(), "m1")
	if err != nil {
		t.Fatalf("ledger record missing: %v", err)
	}
	if rec.Status != domain.SyncStatusCompleted {
		t.Errorf("ledger status = %q", rec.Status)
	}
	if rec.BytesTransferred != 11 {
		t.Errorf("ledger bytes = %d", rec.BytesTransferred)
	}
	if len(metrics.Find("VideosSynced")) != 1 {
		t.Error("VideosSynced not emitted")
	}
}

func TestTransfer_ThresholdBoundary(t *testing.T) {
	body := strings.Repeat("x", 8)

	// Declared size exactly at the threshold goes multipart.
	provider := mocks.NewMockProvider("gopro")
	provider.DownloadBody = body
	engine, objects, _, _ := transferFixture(provider, 8, 4)
	res, err := engine.Transfer(context.Background(), transferCreds(), videoItem("at", 8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data, _, ok := objects.Object(res.StorageKey); !ok || len(data) != 8 {
		t.Fatal("multipart object not assembled")
	}
	if objects.PendingUploads() != 0 {
		t.Error("multipart session left open")
	}

	// One byte under the threshold goes direct: a failing part upload
	// would surface if multipart were chosen.
	provider = mocks.NewMockProvider("gopro")
	provider.DownloadBody = strings.Repeat("x", 7)
	engine, objects, _, _ = transferFixture(provider, 8, 4)
	objects.UploadPartErr = errors.New("multipart path must not be used")
	res, err = engine.Transfer(context.Background(), transferCreds(), videoItem("under", 7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.TransferCompleted {
		t.Errorf("status = %q", res.Status)
	}
}

func TestTransfer_UnknownSizeUsesMultipart(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.DownloadBody = strings.Repeat("y", 10)
	provider.ContentLength = -1
	engine, objects, _, _ := transferFixture(provider, 1024, 4)

	item := videoItem("nosize", 0)
	res, err := engine.Transfer(context.Background(), transferCreds(), item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.BytesTransferred != 10 {
		t.Errorf("bytes = %d, want 10", res.BytesTransferred)
	}
	if data, _, ok := objects.Object(res.StorageKey); !ok || len(data) != 10 {
		t.Error("object not assembled from parts")
	}
}

func TestTransfer_IdempotentShortCircuit(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.DownloadErr = errors.New("no download may happen")
	engine, objects, ledger, _ := transferFixture(provider, 1024, 512)

	key := "gopro-videos/2026/03/m1.MP4"
	objects.SeedObject(key, []byte("existing"), map[string]string{"source-media-id": "m1"})
	ledger.Seed(&domain.SyncRecord{MediaID: "m1", Status: domain.SyncStatusFailed})

	res, err := engine.Transfer(context.Background(), transferCreds(), videoItem("m1", 8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.TransferAlreadyUploaded {
		t.Fatalf("status = %q, want already_uploaded", res.Status)
	}
	if res.StorageKey != key {
		t.Errorf("storage key = %q", res.StorageKey)
	}

	// The stale FAILED row converges to COMPLETED.
	rec, _ := ledger.Get(context.Background(), "m1")
	if rec.Status != domain.SyncStatusCompleted {
		t.Errorf("ledger status = %q, want COMPLETED", rec.Status)
	}
}

func TestTransfer_SourceDeletedOnDownload(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.DownloadErr = domain.ErrSourceDeleted
	engine, _, ledger, _ := transferFixture(provider, 1024, 512)

	res, err := engine.Transfer(context.Background(), transferCreds(), videoItem("gone", 8))
	if err != nil {
		t.Fatalf("source deletion must not be an error: %v", err)
	}
	if res.Status != domain.TransferCompletedWithNote || res.Note != domain.NoteSourceDeleted {
		t.Fatalf("result = %+v, want completed_with_note source_deleted", res)
	}

	rec, _ := ledger.Get(context.Background(), "gone")
	if rec.Status != domain.SyncStatusCompleted || rec.Note != domain.NoteSourceDeleted {
		t.Errorf("ledger record = %+v", rec)
	}
}

func TestTransfer_SourceDeletedOnResolve(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.ErrsByID = map[string]error{"gone": domain.ErrSourceDeleted}
	engine, _, _, _ := transferFixture(provider, 1024, 512)

	res, err := engine.Transfer(context.Background(), transferCreds(), videoItem("gone", 8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.TransferCompletedWithNote {
		t.Errorf("status = %q", res.Status)
	}
}

func TestTransfer_MidStreamFailureAbortsMultipart(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.DownloadBody = strings.Repeat("z", 12)
	engine, objects, ledger, metrics := transferFixture(provider, 8, 4)
	objects.UploadPartErr = errors.New("backend unavailable")
	objects.FailPartNumber = 2

	res, err := engine.Transfer(context.Background(), transferCreds(), videoItem("big", 12))
	if err == nil {
		t.Fatal("expected transfer error")
	}
	if res.Status != domain.TransferFailed {
		t.Errorf("status = %q", res.Status)
	}
	if len(objects.Aborted()) != 1 {
		t.Error("multipart session was not aborted")
	}

	rec, _ := ledger.Get(context.Background(), "big")
	if rec.Status != domain.SyncStatusFailed {
		t.Errorf("ledger status = %q, want FAILED", rec.Status)
	}
	if rec.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", rec.RetryCount)
	}
	if len(metrics.Find("SyncFailures")) != 1 {
		t.Error("SyncFailures not emitted")
	}
}

func TestTransfer_CompletedLedgerWriteFailureSurfaces(t *testing.T) {
	provider := mocks.NewMockProvider("gopro")
	provider.DownloadBody = "data"
	engine, _, ledger, _ := transferFixture(provider, 1024, 512)
	ledger.UpsertErr = errors.New("ledger down")

	res, err := engine.Transfer(context.Background(), transferCreds(), videoItem("m1", 4))
	if err == nil {
		t.Fatal("expected error when the success-path ledger write fails")
	}
	if res.Status != domain.TransferFailed {
		t.Errorf("status = %q", res.Status)
	}
}

func TestStorageKey_UnparsableDateFallsBack(t *testing.T) {
	engine, _, _, _ := transferFixture(mocks.NewMockProvider("gopro"), 1024, 512)
	item := videoItem("m1", 4)
	item.UploadDate = "not-a-date"

	key := engine.storageKey(item)
	if !strings.HasPrefix(key, "gopro-videos/") || !strings.HasSuffix(key, "/m1.MP4") {
		t.Errorf("key = %q", key)
	}
}
