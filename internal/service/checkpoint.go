// Package service holds the jobfeed business logic: folding worker messages into job state
// and deriving the live job views. Services depend on the ports in internal/core only.
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

// Completion sources for metrics and logs.
const (
	completionFromCheckpoint = "checkpoint"
	completionFromJobSize    = "job_size"
)

// CheckpointRepos groups the repositories the aggregator reads and writes.
type CheckpointRepos struct {
	Jobs        core.JobRepository        // Required
	Checkpoints core.CheckpointRepository // Required
}

// CheckpointAggregatorOptions groups dependencies for CheckpointAggregator.
type CheckpointAggregatorOptions struct {
	Repos   CheckpointRepos     // Required: job and checkpoint repositories
	Events  core.EventPublisher // Required: outbound "all checkpoints processed" channel
	Logger  *slog.Logger        // Optional: structured logger
	Metrics statsd.Sink         // Optional: metrics sink
}

// CheckpointAggregator folds checkpoint messages into job state and announces when every
// checkpoint of a job is persisted.
//
// Handlers for the same job may run concurrently and messages may be redelivered or arrive
// out of order. Checkpoints are upserted under a deterministic id and completion is derived
// from a fresh count of persisted records, so no lock is needed. Two handlers that observe
// the final count at the same moment may both publish; consumers of the event are idempotent.
type CheckpointAggregator struct {
	jobs        core.JobRepository
	checkpoints core.CheckpointRepository
	events      core.EventPublisher
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewCheckpointAggregator constructs a new CheckpointAggregator.
func NewCheckpointAggregator(opts CheckpointAggregatorOptions) (*CheckpointAggregator, error) {
	if opts.Repos.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Repos.Checkpoints == nil {
		return nil, errors.New("CheckpointRepository is required")
	}
	if opts.Events == nil {
		return nil, errors.New("EventPublisher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckpointAggregator{
		jobs:        opts.Repos.Jobs,
		checkpoints: opts.Repos.Checkpoints,
		events:      opts.Events,
		logger:      logger.With("component", "checkpoint_aggregator"),
		metrics:     opts.Metrics,
	}, nil
}

// Handle processes one checkpoint message. A message for a job that no longer exists is
// dropped without error. Any other failure is returned so the transport can redeliver.
func (s *CheckpointAggregator) Handle(ctx context.Context, msg model.CheckpointMessage) (err error) {
	result := metrics.ResultSuccess
	defer ingestMetric(s.metrics, "result_checkpoints")(&result, &err)

	if err := msg.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid checkpoint message")
	}

	job, err := s.jobs.MarkProcessing(ctx, msg.JobID)
	if apperrors.IsNotFound(err) {
		s.logger.WarnContext(ctx, "checkpoint for unknown job dropped",
			"job_id", msg.JobID, "checkpoint_id", msg.CheckpointID)
		result = metrics.ResultSkipped
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark job %s processing: %w", msg.JobID, err)
	}

	err = s.checkpoints.Upsert(ctx, model.ResultCheckpoint{
		ID:           msg.RecordID(),
		JobID:        msg.JobID,
		CheckpointID: string(msg.CheckpointID),
		JobType:      job.JobType,
		Payload:      msg.Payload,
	})
	if apperrors.IsForeignKey(err) {
		// the job was deleted after it was marked processing
		s.logger.WarnContext(ctx, "job deleted while persisting checkpoint",
			"job_id", msg.JobID, "checkpoint_id", msg.CheckpointID)
		result = metrics.ResultSkipped
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist checkpoint %s: %w", msg.RecordID(), err)
	}

	return checkCompletion(ctx, completionCheck{
		jobs:        s.jobs,
		checkpoints: s.checkpoints,
		events:      s.events,
		logger:      s.logger,
		metrics:     s.metrics,
	}, msg.JobID, completionFromCheckpoint)
}

type completionCheck struct {
	jobs        core.JobRepository
	checkpoints core.CheckpointRepository
	events      core.EventPublisher
	logger      *slog.Logger
	metrics     statsd.Sink
}

// checkCompletion publishes the completion event when the number of distinct persisted
// checkpoints equals the job's announced total. Both values are read fresh; an unknown total
// never matches.
func checkCompletion(ctx context.Context, c completionCheck, jobID, source string) error {
	count, err := c.checkpoints.CountByJobID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("count checkpoints of job %s: %w", jobID, err)
	}
	job, err := c.jobs.GetByID(ctx, jobID)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reload job %s: %w", jobID, err)
	}
	if !model.AllCheckpointsProcessed(count, job.NumCheckpointsTotal) {
		return nil
	}

	evt := model.JobEvent{JobID: jobID, Event: model.EventAllCheckpointsProcessed}
	if err := c.events.Publish(ctx, evt); err != nil {
		return fmt.Errorf("publish %s for job %s: %w", evt.Event, jobID, err)
	}
	c.logger.InfoContext(ctx, "all checkpoints processed",
		"job_id", jobID, "checkpoints", count, "source", source)
	metrics.EmitCompletion(c.metrics, source)
	return nil
}
