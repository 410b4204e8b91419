// Package taskqueue connects the ingest services to the asynq task queue.
//
// Each inbound message kind is one task type. The worker decodes the JSON payload and
// hands it to the matching service; a payload that cannot be decoded or validated is
// a permanent failure and is archived instead of retried.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
	obserrors "github.com/target/jobfeed/internal/observability/errors"
)

// Task types consumed by the ingest worker.
const (
	TypeResultCheckpoints = "result_checkpoints"
	TypeResults           = "results"
	TypeJobSizes          = "job_sizes"
	TypeOutputFiles       = "output_files"
)

// Handler processes one decoded message.
type Handler[T any] interface {
	Handle(ctx context.Context, msg T) error
}

// Handlers groups the service for each task type. All are required.
type Handlers struct {
	Checkpoints Handler[model.CheckpointMessage]
	Results     Handler[model.Result]
	Sizes       Handler[model.JobSizeMessage]
	Outputs     Handler[model.OutputFileMessage]
}

func (h Handlers) validate() error {
	switch {
	case h.Checkpoints == nil:
		return errors.New("checkpoint handler is required")
	case h.Results == nil:
		return errors.New("result handler is required")
	case h.Sizes == nil:
		return errors.New("job size handler is required")
	case h.Outputs == nil:
		return errors.New("output file handler is required")
	}
	return nil
}

// NewMux routes every task type to its handler.
func NewMux(h Handlers) (*asynq.ServeMux, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	mux := asynq.NewServeMux()
	mux.Handle(TypeResultCheckpoints, decode(h.Checkpoints))
	mux.Handle(TypeResults, decode(h.Results))
	mux.Handle(TypeJobSizes, decode(h.Sizes))
	mux.Handle(TypeOutputFiles, decode(h.Outputs))
	return mux, nil
}

func decode[T any](h Handler[T]) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var msg T
		if err := json.Unmarshal(t.Payload(), &msg); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		err := h.Handle(ctx, msg)
		if apperrors.IsValidation(err) {
			return fmt.Errorf("%s: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		return err
	}
}

// ServerOptions groups dependencies for Server.
type ServerOptions struct {
	Redis    asynq.RedisConnOpt  // Required
	Config   config.IngestConfig // Optional; sanitized
	Handlers Handlers            // Required
	Logger   *slog.Logger        // Optional
}

// Server runs the asynq worker for the ingest task types.
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewServer constructs a Server. Nothing is consumed until Run.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis connection option is required")
	}
	mux, err := NewMux(opts.Handlers)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "taskqueue")
	cfg := opts.Config
	cfg.Sanitize()

	srv := asynq.NewServer(opts.Redis, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          map[string]int{cfg.Queue: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          &asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.WarnContext(ctx, "task failed",
				"type", task.Type(),
				"retry", retried,
				"max_retry", maxRetry,
				"permanent", errors.Is(err, asynq.SkipRetry),
				"error", err,
				"error_class", obserrors.Classify(err),
			)
		}),
	})
	return &Server{srv: srv, mux: mux, logger: logger}, nil
}

// Run processes tasks until ctx is canceled, then waits up to the shutdown timeout for
// in-flight tasks.
func (s *Server) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting task queue worker")
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("start task queue worker: %w", err)
	}
	<-ctx.Done()
	s.srv.Shutdown()
	s.logger.InfoContext(context.WithoutCancel(ctx), "task queue worker stopped")
	return nil
}

// asynqLogger forwards asynq's internal logging to slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

// Fatal matches asynq's default logger and exits the process.
func (l *asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
