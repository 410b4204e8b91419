package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/net/netutil"

	"github.com/target/jobfeed/config"
	httpx "github.com/target/jobfeed/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	// OnError receives a failure of the serve loop.
	OnError func(error)
}

// StartHTTPServer creates the router, binds the listener and serves in the background.
// Live sessions are closed once shutdown is canceled. Returns the server instance for
// graceful shutdown.
func StartHTTPServer(shutdown context.Context, cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	modules, err := appCfg.ParsedModules()
	if err != nil {
		return nil, fmt.Errorf("parse modules: %w", err)
	}

	lifecycle := httpx.NewLifecycle(httpx.LifecycleOptions{
		Config:   appCfg.WebSocket,
		Logger:   logger,
		Metrics:  cfg.Services.Observability.MetricsSink,
		Reporter: cfg.Services.Observability.FailureNotifier,
		Shutdown: shutdown,
	})

	handler, err := httpx.NewRouter(httpx.RouterServices{
		Reader:    cfg.Services.Reader,
		Watcher:   cfg.Services.Watcher,
		Feed:      cfg.Services.Feed,
		Lifecycle: lifecycle,
		Modules:   modules,
		Checks:    healthChecks(cfg.DB, cfg.RedisClient),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if n := appCfg.HTTP.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}

	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr, "max_connections", appCfg.HTTP.MaxConnections)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			if cfg.OnError != nil {
				cfg.OnError(err)
			}
		}
	}()

	return server, nil
}

func healthChecks(db *sql.DB, rdb redis.UniversalClient) map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Server  *http.Server
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server. Hijacked WebSocket connections
// are not tracked by the server; they end through the lifecycle shutdown context.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
