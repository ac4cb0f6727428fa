package mocks

import (
	"sync"

	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// MockMetrics records emitted metrics.
type MockMetrics struct {
	mu      sync.Mutex
	metrics []driven.Metric
}

// NewMockMetrics creates a new MockMetrics.
func NewMockMetrics() *MockMetrics {
	return &MockMetrics{}
}

func (m *MockMetrics) Emit(metrics ...driven.Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, metrics...)
}

// Helper methods for testing

func (m *MockMetrics) Emitted() []driven.Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driven.Metric(nil), m.metrics...)
}

// Find returns all datapoints emitted under name.
func (m *MockMetrics) Find(name string) []driven.Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []driven.Metric
	for _, metric := range m.metrics {
		if metric.Name == name {
			out = append(out, metric)
		}
	}
	return out
}
