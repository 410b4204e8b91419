package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/target/jobfeed/internal/core"
	"github.com/target/jobfeed/internal/domain/model"
)

// errFeedEnded is returned when a subscription closes without an error while the watch is
// still running.
var errFeedEnded = errors.New("change feed ended")

// JobWatcherOptions groups dependencies for JobWatcher.
type JobWatcherOptions struct {
	Jobs    core.JobRepository // Required
	Feed    core.ChangeFeed    // Required
	BaseURL string             // Optional: prefix for links in job views
	Logger  *slog.Logger
}

// JobWatcher pushes the full view of a job whenever the job record or any of its results
// changes.
type JobWatcher struct {
	jobs    core.JobRepository
	feed    core.ChangeFeed
	baseURL string
	logger  *slog.Logger
}

// NewJobWatcher constructs a new JobWatcher.
func NewJobWatcher(opts JobWatcherOptions) (*JobWatcher, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Feed == nil {
		return nil, errors.New("ChangeFeed is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobWatcher{
		jobs:    opts.Jobs,
		feed:    opts.Feed,
		baseURL: opts.BaseURL,
		logger:  logger.With("component", "job_watcher"),
	}, nil
}

// Watch calls emit with the current view of the job, then again after every change to the
// job or its results until ctx is canceled or emit fails. Changes arriving while a view is
// being computed collapse into one recompute. A job deleted mid-watch ends it with a
// NotFound error.
func (w *JobWatcher) Watch(ctx context.Context, jobID string, emit func(context.Context, model.JobView) error) error {
	g, gctx := errgroup.WithContext(ctx)

	jobSub, err := w.feed.Subscribe(gctx, model.JobScope(jobID), true)
	if err != nil {
		return fmt.Errorf("subscribe to job %s: %w", jobID, err)
	}
	defer jobSub.Close()
	resultSub, err := w.feed.Subscribe(gctx, model.ResultsScope(jobID, nil), false)
	if err != nil {
		return fmt.Errorf("subscribe to results of job %s: %w", jobID, err)
	}
	defer resultSub.Close()

	ticks := make(chan struct{}, 1)
	forward := func(sub core.Subscription) func() error {
		return func() error {
			for range sub.Changes() {
				select {
				case ticks <- struct{}{}:
				default:
				}
			}
			if err := sub.Err(); err != nil {
				return err
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return errFeedEnded
		}
	}
	g.Go(forward(jobSub))
	g.Go(forward(resultSub))

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticks:
			}
			job, err := w.jobs.GetByID(gctx, jobID)
			if err != nil {
				return err
			}
			if err := emit(gctx, model.NewJobView(job, w.baseURL)); err != nil {
				return err
			}
		}
	})

	return g.Wait()
}
