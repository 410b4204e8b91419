// Package janitor provides the adapter that runs the change log janitor.
package janitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/core"
	"github.com/target/jobfeed/internal/data"
	"github.com/target/jobfeed/internal/observability/statsd"
	"github.com/target/jobfeed/internal/service"
)

// Runner constructs the janitor service and runs the prune loop.
type Runner struct {
	janitor *service.JanitorService
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.JanitorConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo    core.ChangelogRepository
	Metrics statsd.Sink
}

// NewRunner creates a new janitor runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewChangelogRepo(opts.DB)
	}
	svc, err := service.NewJanitorService(service.JanitorServiceOptions{
		Repo:    repo,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire janitor service: %w", err)
	}

	return &Runner{janitor: svc, logger: opts.Logger}, nil
}

// Run starts the janitor loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting janitor runner")
	return r.janitor.Run(ctx)
}
