package config

import (
	"os"
	"strings"

	"github.com/target/jobfeed/internal/domain/model"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres and Redis configuration
//   - http.go: HTTP server and WebSocket configuration
//   - services.go: Service mode and worker configuration
//   - observability.go: Metrics and failure notifications
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, debug level).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP      HTTPConfig
	WebSocket WebSocketConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Modules lists the module descriptors served next to the default routes,
	// e.g. "cypstrate,metabolism:hidden".
	Modules []string `env:"MODULES" envSeparator:","`

	// Live feed configuration
	Stream StreamConfig

	// Worker configuration
	Ingest     IngestConfig
	Completion CompletionConfig
	Janitor    JanitorConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.WebSocket.Sanitize()
	c.Stream.Sanitize()
	c.Ingest.Sanitize()
	c.Completion.Sanitize()
	c.Janitor.Sanitize()
	c.Observability.Sanitize()

	modules := c.Modules[:0]
	for _, m := range c.Modules {
		if m = strings.TrimSpace(m); m != "" {
			modules = append(modules, m)
		}
	}
	c.Modules = modules

	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// ParsedModules validates the configured module descriptors.
func (c *AppConfig) ParsedModules() ([]model.Module, error) {
	return model.ParseModules(c.Modules)
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.serviceEnabled(ServiceModeHTTP) }

// IsIngestEnabled returns true if the task queue ingest worker is enabled.
func (c *AppConfig) IsIngestEnabled() bool { return c.serviceEnabled(ServiceModeIngest) }

// IsCompletionEnabled returns true if the completion consumer is enabled.
func (c *AppConfig) IsCompletionEnabled() bool { return c.serviceEnabled(ServiceModeCompletion) }

// IsJanitorEnabled returns true if the change log janitor is enabled.
func (c *AppConfig) IsJanitorEnabled() bool { return c.serviceEnabled(ServiceModeJanitor) }
