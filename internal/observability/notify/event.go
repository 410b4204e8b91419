// Package notify defines the payload and sink contract for failure notifications.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// FailurePayload captures an unexpected failure of a live connection or an ingest worker.
type FailurePayload struct {
	// Component names the failing part, e.g. "results_stream" or "ingest".
	Component  string
	JobID      string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming failure notifications.
type Sink interface {
	SendFailure(ctx context.Context, payload FailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload FailurePayload) error

// SendFailure implements the Sink interface.
func (f SinkFunc) SendFailure(ctx context.Context, payload FailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
