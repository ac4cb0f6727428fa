package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionContext identifies one orchestration run. It lives only for the
// duration of the run and is never persisted beyond log and alert emission.
type ExecutionContext struct {
	CorrelationID string    `json:"correlation_id"`
	StartTime     time.Time `json:"start_time"`
	Scheduled     bool      `json:"scheduled"`
}

// NewExecutionContext creates a context for a run starting now. scheduled
// distinguishes calendar-triggered runs from manual ones.
func NewExecutionContext(scheduled bool) *ExecutionContext {
	return &ExecutionContext{
		CorrelationID: uuid.NewString(),
		StartTime:     time.Now().UTC(),
		Scheduled:     scheduled,
	}
}
