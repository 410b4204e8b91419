package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobfeed/config"
	redisadapter "github.com/target/jobfeed/internal/adapters/redis"
	"github.com/target/jobfeed/internal/data"
	"github.com/target/jobfeed/internal/data/changefeed"
	"github.com/target/jobfeed/internal/observability/notify/pagerduty"
	"github.com/target/jobfeed/internal/observability/notify/slack"
	"github.com/target/jobfeed/internal/observability/statsd"
	"github.com/target/jobfeed/internal/service"
	"github.com/target/jobfeed/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Reader      *service.JobReader
	Watcher     *service.JobWatcher
	Checkpoints *service.CheckpointAggregator
	Results     *service.ResultIngestor
	Sizes       *service.JobSizeUpdater
	Outputs     *service.OutputFileRecorder
	Completion  *service.CompletionHandler
	Feed        *changefeed.Feed

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled.
	MetricsSink     statsd.Sink
	statsdClient    *statsd.Client
	FailureNotifier *failurenotifier.Service
}

// Close releases the metrics connection.
func (o ObservabilityContainer) Close() error {
	if o.statsdClient == nil {
		return nil
	}
	return o.statsdClient.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs        *data.JobRepo
	Checkpoints *data.CheckpointRepo
	Results     *data.ResultRepo
	Events      *redisadapter.EventPublisher
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var out ObservabilityContainer
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:       true,
			Address:       cfg.Metrics.StatsdAddress,
			Prefix:        cfg.Metrics.Prefix,
			Logger:        obsLogger,
			FlushInterval: cfg.Metrics.FlushInterval,
			MaxPacketSize: cfg.Metrics.MaxPacketSize,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.MetricsSink = client
			out.statsdClient = client
		}
	}

	out.FailureNotifier = buildFailureNotifier(obsLogger, cfg.Notifications)
	return out
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps, logger *slog.Logger) (*serviceRepositories, error) {
	repoCfg := data.RepoConfig{Logger: logger}
	repos := &serviceRepositories{
		Jobs:        data.NewJobRepo(deps.DB, repoCfg),
		Checkpoints: data.NewCheckpointRepo(deps.DB, repoCfg),
		Results:     data.NewResultRepo(deps.DB, repoCfg),
	}
	if deps.RedisClient != nil {
		events, err := redisadapter.NewEventPublisher(deps.RedisClient, deps.Config.Completion)
		if err != nil {
			return nil, fmt.Errorf("create event publisher: %w", err)
		}
		repos.Events = events
	}
	return repos, nil
}

// NewServices wires repositories, the change feed and every service.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("service dependencies require config and database")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	repos, err := buildRepositories(deps, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	obs := buildObservability(logger, cfg.Observability)

	feed, err := changefeed.New(changefeed.Config{
		DSN:              cfg.Postgres.DSN(),
		BufferSize:       cfg.Stream.BufferSize,
		MaxSubscriptions: cfg.Stream.MaxSubscriptions,
		ApplicationName:  "jobfeed-stream",
		Logger:           logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create change feed: %w", err)
	}

	c := ServiceContainer{Feed: feed, Observability: obs}
	if err := buildDomainServices(&c, repos, cfg, logger); err != nil {
		return ServiceContainer{}, err
	}
	return c, nil
}

func buildDomainServices(c *ServiceContainer, repos *serviceRepositories, cfg *config.AppConfig, logger *slog.Logger) error {
	var err error
	sink := c.Observability.MetricsSink

	if c.Reader, err = service.NewJobReader(service.JobReaderOptions{
		Jobs:    repos.Jobs,
		Results: repos.Results,
		BaseURL: cfg.HTTP.BaseURL,
	}); err != nil {
		return fmt.Errorf("create job reader: %w", err)
	}
	if c.Watcher, err = service.NewJobWatcher(service.JobWatcherOptions{
		Jobs:    repos.Jobs,
		Feed:    c.Feed,
		BaseURL: cfg.HTTP.BaseURL,
		Logger:  logger,
	}); err != nil {
		return fmt.Errorf("create job watcher: %w", err)
	}
	if c.Results, err = service.NewResultIngestor(service.ResultIngestorOptions{
		Jobs: repos.Jobs, Results: repos.Results, Logger: logger, Metrics: sink,
	}); err != nil {
		return fmt.Errorf("create result ingestor: %w", err)
	}
	if c.Outputs, err = service.NewOutputFileRecorder(service.OutputFileRecorderOptions{
		Jobs: repos.Jobs, Logger: logger, Metrics: sink,
	}); err != nil {
		return fmt.Errorf("create output file recorder: %w", err)
	}
	if c.Completion, err = service.NewCompletionHandler(service.CompletionHandlerOptions{
		Jobs: repos.Jobs, Logger: logger, Metrics: sink,
	}); err != nil {
		return fmt.Errorf("create completion handler: %w", err)
	}

	// Checkpoint and size handling publish completion events and so need Redis.
	if repos.Events == nil {
		logger.Warn("redis unavailable; checkpoint aggregation disabled")
		return nil
	}
	checkpointRepos := service.CheckpointRepos{Jobs: repos.Jobs, Checkpoints: repos.Checkpoints}
	if c.Checkpoints, err = service.NewCheckpointAggregator(service.CheckpointAggregatorOptions{
		Repos: checkpointRepos, Events: repos.Events, Logger: logger, Metrics: sink,
	}); err != nil {
		return fmt.Errorf("create checkpoint aggregator: %w", err)
	}
	if c.Sizes, err = service.NewJobSizeUpdater(service.JobSizeUpdaterOptions{
		Repos: checkpointRepos, Events: repos.Events, Logger: logger, Metrics: sink,
	}); err != nil {
		return fmt.Errorf("create job size updater: %w", err)
	}
	return nil
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			BaseURL:    cfg.Slack.JobBaseURL,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:  baseLogger.With("component", "failure_notifier"),
		Sinks:   sinks,
		Timeout: cfg.Timeout,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// reportError hands a service failure to the orchestrator without blocking.
func (d *serviceStartupDeps) reportError(ctx context.Context, name string, err error) {
	errMsg := fmt.Errorf("%s failed: %w", name, err)
	select {
	case d.errCh <- errMsg:
	case <-ctx.Done():
	default:
		d.logger.WarnContext(ctx, "dropping background service error", "service", name, "error", errMsg)
	}
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			deps.reportError(ctx, descriptor.name, err)
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newIngestBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeIngest,
		name: "ingest worker",
		start: func(ctx context.Context) error {
			return RunIngest(ctx, IngestConfig{
				Redis:    deps.cfg.Config.Redis,
				Config:   deps.cfg.Config.Ingest,
				Services: deps.cfg.Services,
				Logger:   deps.logger,
			})
		},
	}
}

func newCompletionBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeCompletion,
		name: "completion consumer",
		start: func(ctx context.Context) error {
			return RunCompletion(ctx, CompletionConfig{
				RedisClient: deps.cfg.RedisClient,
				Config:      deps.cfg.Config.Completion,
				Handler:     deps.cfg.Services.Completion,
				Logger:      deps.logger,
			})
		},
	}
}

func newJanitorBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeJanitor,
		name: "janitor",
		start: func(ctx context.Context) error {
			return RunJanitor(ctx, JanitorConfig{
				DB:      deps.cfg.DB,
				Config:  deps.cfg.Config.Janitor,
				Logger:  deps.logger,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newIngestBackgroundService(deps),
		newCompletionBackgroundService(deps),
		newJanitorBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}

	var httpServer *http.Server
	if enabledServices[config.ServiceModeHTTP] {
		httpServer, err = StartHTTPServer(serviceCtx, &HTTPServerConfig{
			Config:      cfg.Config,
			Services:    cfg.Services,
			DB:          cfg.DB,
			RedisClient: cfg.RedisClient,
			Logger:      logger,
			OnError:     func(err error) { deps.reportError(serviceCtx, "http server", err) },
		})
		if err != nil {
			return err
		}
	}
	backgrounds := startBackgroundServices(deps, buildBackgroundServices(deps))

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      httpServer,
		shutdownTimeout: cfg.Config.HTTP.ShutdownTimeout,
		logger:          logger,
		backgrounds:     backgrounds,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services. The service context is already
// canceled, so live sessions are closing while the server drains.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Server:  cfg.httpServer,
			Timeout: cfg.shutdownTimeout,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
