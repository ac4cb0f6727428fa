package driven

import "context"

// AlertSeverity orders operational alerts for routing.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Notifier publishes operational alerts to an out-of-band channel.
// Publishing is best effort: callers log failures and continue.
type Notifier interface {
	Publish(ctx context.Context, severity AlertSeverity, subject string, body map[string]any) error
}
