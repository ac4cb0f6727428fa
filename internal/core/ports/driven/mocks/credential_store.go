package mocks

import (
	"context"
	"sync"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
)

// MockCredentialStore is an in-memory CredentialStore for testing.
type MockCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*domain.Credentials

	GetErr error

	// PutErr fails Put. FailPutTimes limits the failure to the first N
	// calls so rollback paths can be exercised.
	PutErr       error
	FailPutTimes int

	putCalls int
}

// NewMockCredentialStore creates a new MockCredentialStore.
func NewMockCredentialStore() *MockCredentialStore {
	return &MockCredentialStore{
		creds: make(map[string]*domain.Credentials),
	}
}

func (m *MockCredentialStore) Get(ctx context.Context, provider string) (*domain.Credentials, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[provider]
	if !ok {
		return nil, domain.ErrCredentialsUnavailable
	}
	cp := *c
	return &cp, nil
}

func (m *MockCredentialStore) Put(ctx context.Context, creds *domain.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.PutErr != nil && (m.FailPutTimes == 0 || m.putCalls <= m.FailPutTimes) {
		return m.PutErr
	}
	cp := *creds
	m.creds[creds.Provider] = &cp
	return nil
}

// Helper methods for testing

func (m *MockCredentialStore) Seed(creds *domain.Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[creds.Provider] = creds
}

func (m *MockCredentialStore) PutCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.putCalls
}
