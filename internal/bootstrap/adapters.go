package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/adapters/janitor"
	redisadapter "github.com/target/jobfeed/internal/adapters/redis"
	"github.com/target/jobfeed/internal/adapters/taskqueue"
	"github.com/target/jobfeed/internal/observability/statsd"
	"github.com/target/jobfeed/internal/service"
)

// IngestConfig contains configuration for the task queue worker.
type IngestConfig struct {
	Redis    config.RedisConfig
	Config   config.IngestConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunIngest starts the task queue worker feeding the ingest services.
func RunIngest(ctx context.Context, cfg IngestConfig) error {
	if cfg.Services.Checkpoints == nil || cfg.Services.Sizes == nil {
		return errors.New("ingest requires redis for completion events")
	}
	opt, err := taskqueue.RedisConnOpt(cfg.Redis)
	if err != nil {
		return err
	}
	server, err := taskqueue.NewServer(taskqueue.ServerOptions{
		Redis:  opt,
		Config: cfg.Config,
		Handlers: taskqueue.Handlers{
			Checkpoints: cfg.Services.Checkpoints,
			Results:     cfg.Services.Results,
			Sizes:       cfg.Services.Sizes,
			Outputs:     cfg.Services.Outputs,
		},
		Logger: cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create task queue worker: %w", err)
	}
	return server.Run(ctx)
}

// CompletionConfig contains configuration for the completion consumer.
type CompletionConfig struct {
	RedisClient redis.UniversalClient
	Config      config.CompletionConfig
	Handler     *service.CompletionHandler
	Logger      *slog.Logger
}

// RunCompletion starts the consumer marking jobs completed.
func RunCompletion(ctx context.Context, cfg CompletionConfig) error {
	if cfg.Handler == nil {
		return errors.New("completion handler is required")
	}
	consumer, err := redisadapter.NewConsumer(redisadapter.ConsumerOptions{
		Client:  cfg.RedisClient,
		Handler: cfg.Handler,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create completion consumer: %w", err)
	}
	return consumer.Run(ctx)
}

// JanitorConfig contains configuration for the change log janitor.
type JanitorConfig struct {
	DB      *sql.DB
	Config  config.JanitorConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// RunJanitor starts the change log janitor.
func RunJanitor(ctx context.Context, cfg JanitorConfig) error {
	runner, err := janitor.NewRunner(janitor.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create janitor runner: %w", err)
	}
	return runner.Run(ctx)
}
