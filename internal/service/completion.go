package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobfeed/internal/core"
	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
	"github.com/target/jobfeed/internal/observability/metrics"
	"github.com/target/jobfeed/internal/observability/statsd"
)

// CompletionHandlerOptions groups dependencies for CompletionHandler.
type CompletionHandlerOptions struct {
	Jobs    core.JobRepository // Required
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// CompletionHandler consumes job events and marks jobs completed. It is idempotent: repeated
// "all checkpoints processed" events for the same job leave the job completed.
type CompletionHandler struct {
	jobs    core.JobRepository
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewCompletionHandler constructs a new CompletionHandler.
func NewCompletionHandler(opts CompletionHandlerOptions) (*CompletionHandler, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionHandler{
		jobs:    opts.Jobs,
		logger:  logger.With("component", "completion_handler"),
		metrics: opts.Metrics,
	}, nil
}

// Handle applies one job event. Unknown events and events for deleted jobs are ignored.
func (h *CompletionHandler) Handle(ctx context.Context, evt model.JobEvent) error {
	if evt.Event != model.EventAllCheckpointsProcessed {
		h.logger.DebugContext(ctx, "ignoring job event", "job_id", evt.JobID, "event", evt.Event)
		return nil
	}

	changed, err := h.jobs.MarkCompleted(ctx, evt.JobID)
	switch {
	case apperrors.IsNotFound(err):
		h.logger.WarnContext(ctx, "completion for unknown job ignored", "job_id", evt.JobID)
		metrics.EmitJobCompleted(h.metrics, metrics.ResultSkipped)
		return nil
	case err != nil:
		metrics.EmitJobCompleted(h.metrics, metrics.ResultError)
		return fmt.Errorf("mark job %s completed: %w", evt.JobID, err)
	case !changed:
		metrics.EmitJobCompleted(h.metrics, metrics.ResultNoop)
		return nil
	}

	h.logger.InfoContext(ctx, "job completed", "job_id", evt.JobID)
	metrics.EmitJobCompleted(h.metrics, metrics.ResultSuccess)
	return nil
}
