package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
)

// MockLedger is an in-memory Ledger for testing.
type MockLedger struct {
	mu      sync.RWMutex
	records map[string]*domain.SyncRecord

	// GetStatusesErr, when set, fails GetStatuses. FailGetStatusesTimes
	// limits the failure to the first N calls so retry paths can be
	// exercised.
	GetStatusesErr       error
	FailGetStatusesTimes int
	getStatusesCalls     int

	UpsertErr error
}

// NewMockLedger creates a new MockLedger.
func NewMockLedger() *MockLedger {
	return &MockLedger{
		records: make(map[string]*domain.SyncRecord),
	}
}

func (m *MockLedger) GetStatuses(ctx context.Context, mediaIDs []string) (map[string]domain.SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getStatusesCalls++
	if m.GetStatusesErr != nil {
		if m.FailGetStatusesTimes == 0 || m.getStatusesCalls <= m.FailGetStatusesTimes {
			return nil, m.GetStatusesErr
		}
	}
	result := make(map[string]domain.SyncStatus)
	for _, id := range mediaIDs {
		if rec, ok := m.records[id]; ok {
			result[id] = rec.Status
		}
	}
	return result, nil
}

func (m *MockLedger) Upsert(ctx context.Context, mediaID string, status domain.SyncStatus, attrs *domain.RecordAttrs) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[mediaID]
	if !ok {
		rec = &domain.SyncRecord{MediaID: mediaID}
		m.records[mediaID] = rec
	}
	rec.Status = status
	attrs.Apply(rec)
	now := time.Now().UTC()
	rec.UpdateTimestamp = &now
	return nil
}

func (m *MockLedger) Get(ctx context.Context, mediaID string) (*domain.SyncRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[mediaID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Helper methods for testing

func (m *MockLedger) Seed(rec *domain.SyncRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.MediaID] = rec
}

func (m *MockLedger) GetStatusesCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getStatusesCalls
}

func (m *MockLedger) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
