// Package failurenotifier fans unexpected failures out to the configured notification sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/jobfeed/internal/core"
	obserrors "github.com/target/jobfeed/internal/observability/errors"
	"github.com/target/jobfeed/internal/observability/notify"
)

const defaultTimeout = 10 * time.Second

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Timeout bounds one fan-out; defaults to 10s.
	Timeout time.Duration
}

// Service dispatches failure events to all registered sinks. It implements core.ErrorReporter.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
	now     func() time.Time
}

var _ core.ErrorReporter = (*Service)(nil)

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Service{
		logger:  logger.With("component", "failure_notifier"),
		sinks:   sinks,
		timeout: timeout,
		now:     time.Now,
	}
}

// Report implements core.ErrorReporter. The "component" and "job_id" attributes fill the
// matching payload fields; the rest are passed as metadata. Delivery outlives ctx
// cancellation so failures seen during shutdown are still reported.
func (s *Service) Report(ctx context.Context, err error, attrs map[string]string) {
	if err == nil {
		return
	}

	payload := notify.FailurePayload{
		Error:      err.Error(),
		ErrorClass: obserrors.Classify(err),
		OccurredAt: s.now(),
	}
	for k, v := range attrs {
		switch k {
		case "component":
			payload.Component = v
		case "job_id":
			payload.JobID = v
		default:
			if payload.Metadata == nil {
				payload.Metadata = make(map[string]string, len(attrs))
			}
			payload.Metadata[k] = v
		}
	}

	s.logger.ErrorContext(ctx, "unexpected failure",
		"failed_component", payload.Component,
		"job_id", payload.JobID,
		"error_class", payload.ErrorClass,
		"error", err,
	)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	s.NotifyFailure(sendCtx, payload)
}

// NotifyFailure fans the payload out to all sinks and waits for every delivery.
func (s *Service) NotifyFailure(ctx context.Context, payload notify.FailurePayload) {
	if len(s.sinks) == 0 {
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"failed_component", payload.Component,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
