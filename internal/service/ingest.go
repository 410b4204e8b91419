package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/jobfeed/internal/core"
	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
	"github.com/target/jobfeed/internal/observability/metrics"
	"github.com/target/jobfeed/internal/observability/statsd"
)

// ingestMetric records the outcome of one inbound message when the returned func runs.
func ingestMetric(sink statsd.Sink, kind string) func(result *string, err *error) {
	start := time.Now()
	return func(result *string, err *error) {
		r := *result
		if *err != nil {
			r = metrics.ResultError
		}
		metrics.EmitIngest(sink, metrics.IngestMetric{
			Kind: kind, Result: r, Duration: time.Since(start), Err: *err,
		})
	}
}

// ResultIngestorOptions groups dependencies for ResultIngestor.
type ResultIngestorOptions struct {
	Jobs    core.JobRepository    // Required
	Results core.ResultRepository // Required
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// ResultIngestor persists result messages and tracks which entries of a job are processed.
type ResultIngestor struct {
	jobs    core.JobRepository
	results core.ResultRepository
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewResultIngestor constructs a new ResultIngestor.
func NewResultIngestor(opts ResultIngestorOptions) (*ResultIngestor, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Results == nil {
		return nil, errors.New("ResultRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultIngestor{
		jobs:    opts.Jobs,
		results: opts.Results,
		logger:  logger.With("component", "result_ingestor"),
		metrics: opts.Metrics,
	}, nil
}

// Handle stores one result. Results of unknown jobs are dropped. The record id is derived
// from the job, mol, atom and derivative ids when the producer did not set one, so
// redelivery overwrites instead of duplicating.
func (s *ResultIngestor) Handle(ctx context.Context, res model.Result) (err error) {
	result := metrics.ResultSuccess
	defer ingestMetric(s.metrics, "results")(&result, &err)

	if res.JobID == "" {
		return apperrors.ValidationField("job_id", "job_id is required")
	}
	if res.ID == "" {
		res.ID = res.DeriveID()
	}

	if _, err := s.jobs.GetByID(ctx, res.JobID); err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.WarnContext(ctx, "result for unknown job dropped", "job_id", res.JobID, "mol_id", res.MolID)
			result = metrics.ResultSkipped
			return nil
		}
		return fmt.Errorf("load job %s: %w", res.JobID, err)
	}

	if err := s.results.Upsert(ctx, res); err != nil {
		if apperrors.IsForeignKey(err) {
			result = metrics.ResultSkipped
			return nil
		}
		return fmt.Errorf("persist result %s: %w", res.ID, err)
	}

	changed, err := s.jobs.AddProcessedEntry(ctx, res.JobID, res.MolID)
	if apperrors.IsNotFound(err) {
		result = metrics.ResultSkipped
		return nil
	}
	if err != nil {
		return fmt.Errorf("record processed entry: %w", err)
	}
	if !changed {
		result = metrics.ResultNoop
	}
	return nil
}

// JobSizeUpdaterOptions groups dependencies for JobSizeUpdater.
type JobSizeUpdaterOptions struct {
	Repos   CheckpointRepos     // Required
	Events  core.EventPublisher // Required
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// JobSizeUpdater records the announced totals of a job.
type JobSizeUpdater struct {
	check  completionCheck
	logger *slog.Logger
}

// NewJobSizeUpdater constructs a new JobSizeUpdater.
func NewJobSizeUpdater(opts JobSizeUpdaterOptions) (*JobSizeUpdater, error) {
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
	logger = logger.With("component", "job_size_updater")
	return &JobSizeUpdater{
		check: completionCheck{
			jobs:        opts.Repos.Jobs,
			checkpoints: opts.Repos.Checkpoints,
			events:      opts.Events,
			logger:      logger,
			metrics:     opts.Metrics,
		},
		logger: logger,
	}, nil
}

// Handle stores the totals and then re-runs the completion check: when the last checkpoint
// arrived before the size message, this is the only place the job can complete.
func (s *JobSizeUpdater) Handle(ctx context.Context, msg model.JobSizeMessage) (err error) {
	result := metrics.ResultSuccess
	defer ingestMetric(s.check.metrics, "job_sizes")(&result, &err)

	if err := msg.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job size message")
	}
	if _, err := s.check.jobs.SetSize(ctx, msg); err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.WarnContext(ctx, "size for unknown job dropped", "job_id", msg.JobID)
			result = metrics.ResultSkipped
			return nil
		}
		return fmt.Errorf("set size of job %s: %w", msg.JobID, err)
	}
	return checkCompletion(ctx, s.check, msg.JobID, completionFromJobSize)
}

// OutputFileRecorderOptions groups dependencies for OutputFileRecorder.
type OutputFileRecorderOptions struct {
	Jobs    core.JobRepository // Required
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// OutputFileRecorder records finished output formats of a job.
type OutputFileRecorder struct {
	jobs    core.JobRepository
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewOutputFileRecorder constructs a new OutputFileRecorder.
func NewOutputFileRecorder(opts OutputFileRecorderOptions) (*OutputFileRecorder, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OutputFileRecorder{
		jobs:    opts.Jobs,
		logger:  logger.With("component", "output_file_recorder"),
		metrics: opts.Metrics,
	}, nil
}

// Handle adds the format to the job once.
func (s *OutputFileRecorder) Handle(ctx context.Context, msg model.OutputFileMessage) (err error) {
	result := metrics.ResultSuccess
	defer ingestMetric(s.metrics, "output_files")(&result, &err)

	if err := msg.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid output file message")
	}
	added, err := s.jobs.AddOutputFormat(ctx, msg.JobID, msg.Format)
	if apperrors.IsNotFound(err) {
		s.logger.WarnContext(ctx, "output file for unknown job dropped", "job_id", msg.JobID, "format", msg.Format)
		result = metrics.ResultSkipped
		return nil
	}
	if err != nil {
		return fmt.Errorf("record output file: %w", err)
	}
	if !added {
		result = metrics.ResultNoop
	}
	return nil
}
