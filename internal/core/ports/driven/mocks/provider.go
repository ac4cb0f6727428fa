package mocks

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// MockProvider is a scriptable MediaProvider for testing.
type MockProvider struct {
	mu sync.Mutex

	ProviderName string

	// Probe behavior. ProbeStatuses is consumed call by call; when
	// exhausted, ProbeStatus is returned.
	ProbeStatus   int
	ProbeStatuses []int
	ProbeErr      error
	probeHeaders  []string

	// List behavior.
	Items    []*domain.MediaItem
	Pages    *domain.PageInfo
	ListErr  error
	listOpts []driven.ListOptions

	// ResolveDownloadURL behavior, keyed by media ID. Missing IDs fall
	// back to ResolveURL / ResolveErr.
	URLsByID   map[string]string
	ErrsByID   map[string]error
	ResolveURL string
	ResolveErr error

	// Download behavior, keyed by URL. Missing URLs fall back to
	// DownloadBody / DownloadErr.
	BodiesByURL   map[string]string
	DownloadErr   error
	DownloadBody  string
	ContentLength int64
	TTFB          time.Duration

	// Refresh behavior.
	Refreshed  *domain.Credentials
	RefreshErr error
	// FailRefreshTimes makes the first N Refresh calls fail with
	// RefreshErr before succeeding.
	FailRefreshTimes int
	refreshCalls     int
}

// NewMockProvider creates a MockProvider that probes healthy by default.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProviderName: name,
		ProbeStatus:  200,
	}
}

func (m *MockProvider) Name() string {
	return m.ProviderName
}

func (m *MockProvider) Probe(ctx context.Context, cookieHeader, userAgent string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeHeaders = append(m.probeHeaders, cookieHeader)
	if m.ProbeErr != nil {
		return 0, m.ProbeErr
	}
	if len(m.ProbeStatuses) > 0 {
		status := m.ProbeStatuses[0]
		m.ProbeStatuses = m.ProbeStatuses[1:]
		return status, nil
	}
	return m.ProbeStatus, nil
}

func (m *MockProvider) List(ctx context.Context, creds *domain.Credentials, opts driven.ListOptions) ([]*domain.MediaItem, *domain.PageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listOpts = append(m.listOpts, opts)
	if m.ListErr != nil {
		return nil, nil, m.ListErr
	}
	pages := m.Pages
	if pages == nil {
		pages = &domain.PageInfo{CurrentPage: 1, TotalPages: 1, PerPage: len(m.Items)}
	}
	return m.Items, pages, nil
}

func (m *MockProvider) ResolveDownloadURL(ctx context.Context, creds *domain.Credentials, mediaID, quality string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.ErrsByID[mediaID]; ok {
		return "", err
	}
	if url, ok := m.URLsByID[mediaID]; ok {
		return url, nil
	}
	if m.ResolveErr != nil {
		return "", m.ResolveErr
	}
	if m.ResolveURL != "" {
		return m.ResolveURL, nil
	}
	return "https://cdn.test/" + mediaID, nil
}

func (m *MockProvider) Download(ctx context.Context, url string) (io.ReadCloser, int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DownloadErr != nil {
		return nil, 0, 0, m.DownloadErr
	}
	body := m.DownloadBody
	if b, ok := m.BodiesByURL[url]; ok {
		body = b
	}
	length := m.ContentLength
	if length == 0 {
		length = int64(len(body))
	}
	return io.NopCloser(strings.NewReader(body)), length, m.TTFB, nil
}

func (m *MockProvider) Refresh(ctx context.Context, creds *domain.Credentials) (*domain.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCalls++
	if m.RefreshErr != nil && (m.FailRefreshTimes == 0 || m.refreshCalls <= m.FailRefreshTimes) {
		return nil, m.RefreshErr
	}
	if m.Refreshed != nil {
		cp := *m.Refreshed
		return &cp, nil
	}
	cp := *creds
	return &cp, nil
}

// Helper methods for testing

func (m *MockProvider) ProbeHeaders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.probeHeaders...)
}

func (m *MockProvider) ListCalls() []driven.ListOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driven.ListOptions(nil), m.listOpts...)
}

func (m *MockProvider) RefreshCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCalls
}
