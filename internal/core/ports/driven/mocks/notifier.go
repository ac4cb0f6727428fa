package mocks

import (
	"context"
	"sync"

	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// Alert captures one published notification for assertions.
type Alert struct {
	Severity driven.AlertSeverity
	Subject  string
	Body     map[string]any
}

// MockNotifier records published alerts.
type MockNotifier struct {
	mu     sync.Mutex
	alerts []Alert

	PublishErr error
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Publish(ctx context.Context, severity driven.AlertSeverity, subject string, body map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, Alert{Severity: severity, Subject: subject, Body: body})
	return m.PublishErr
}

// Helper methods for testing

func (m *MockNotifier) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.alerts...)
}

func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}
