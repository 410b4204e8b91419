package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server with the live WebSocket feeds.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeIngest runs the task queue worker consuming checkpoint, result, size and output messages.
	ServiceModeIngest ServiceMode = "ingest"
	// ServiceModeCompletion runs the consumer of job completion events.
	ServiceModeCompletion ServiceMode = "completion"
	// ServiceModeJanitor runs the change log janitor.
	ServiceModeJanitor ServiceMode = "janitor"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeIngest,
		ServiceModeCompletion,
		ServiceModeJanitor,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeIngest, ServiceModeCompletion, ServiceModeJanitor:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, ingest, completion, janitor)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// StreamConfig bounds the live change feeds.
type StreamConfig struct {
	// BufferSize is the number of changes buffered per subscription before the reader stalls.
	BufferSize int `env:"STREAM_BUFFER_SIZE" envDefault:"64"`

	// MaxSubscriptions caps concurrently open subscriptions; each holds one Postgres connection.
	MaxSubscriptions int `env:"STREAM_MAX_SUBSCRIPTIONS" envDefault:"256"`
}

// Sanitize applies guardrails to stream configuration values.
func (s *StreamConfig) Sanitize() {
	if s.BufferSize < 1 {
		s.BufferSize = 1
	}
	if s.MaxSubscriptions < 1 {
		s.MaxSubscriptions = 1
	}
}

// IngestConfig contains task queue worker configuration.
type IngestConfig struct {
	// Concurrency is the number of tasks processed in parallel.
	Concurrency int `env:"INGEST_CONCURRENCY" envDefault:"10"`

	// Queue is the asynq queue the worker consumes and the client enqueues to.
	Queue string `env:"INGEST_QUEUE" envDefault:"jobfeed"`

	// MaxRetry is the number of redeliveries for a failing task.
	MaxRetry int `env:"INGEST_MAX_RETRY" envDefault:"10"`

	// ShutdownTimeout bounds how long in-flight tasks may finish on shutdown.
	ShutdownTimeout time.Duration `env:"INGEST_SHUTDOWN_TIMEOUT" envDefault:"8s"`
}

// Sanitize applies guardrails to ingest configuration values.
func (i *IngestConfig) Sanitize() {
	if i.Concurrency < 1 {
		i.Concurrency = 1
	}
	if i.Queue = strings.TrimSpace(i.Queue); i.Queue == "" {
		i.Queue = "jobfeed"
	}
	if i.MaxRetry < 0 {
		i.MaxRetry = 0
	}
	if i.ShutdownTimeout <= 0 {
		i.ShutdownTimeout = 8 * time.Second
	}
}

// CompletionConfig contains the completion event stream configuration.
type CompletionConfig struct {
	// Stream is the Redis stream job events are published to.
	Stream string `env:"COMPLETION_STREAM" envDefault:"jobfeed:logs"`

	// Group is the consumer group reading the stream.
	Group string `env:"COMPLETION_GROUP" envDefault:"jobfeed-completion"`

	// BatchSize is the number of entries read per XREADGROUP call.
	BatchSize int64 `env:"COMPLETION_BATCH_SIZE" envDefault:"16"`

	// Block is how long one read waits for new entries.
	Block time.Duration `env:"COMPLETION_BLOCK" envDefault:"5s"`

	// MaxLen trims the stream approximately to this many entries; 0 keeps everything.
	MaxLen int64 `env:"COMPLETION_STREAM_MAXLEN" envDefault:"100000"`
}

// Sanitize applies guardrails to completion configuration values.
func (c *CompletionConfig) Sanitize() {
	if c.Stream = strings.TrimSpace(c.Stream); c.Stream == "" {
		c.Stream = "jobfeed:logs"
	}
	if c.Group = strings.TrimSpace(c.Group); c.Group == "" {
		c.Group = "jobfeed-completion"
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.Block < 100*time.Millisecond {
		c.Block = 100 * time.Millisecond
	}
	if c.MaxLen < 0 {
		c.MaxLen = 0
	}
}

// JanitorConfig contains change log janitor configuration.
type JanitorConfig struct {
	// Interval is the janitor tick interval.
	Interval time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m"`

	// Retention is how long change rows are kept for subscribers that lag behind.
	Retention time.Duration `env:"JANITOR_RETENTION" envDefault:"1h"`

	// BatchSize is the number of rows deleted per statement.
	BatchSize int `env:"JANITOR_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to janitor configuration values.
func (j *JanitorConfig) Sanitize() {
	if j.Interval < time.Second {
		j.Interval = time.Second
	}
	if j.Retention < time.Minute {
		j.Retention = time.Minute
	}
	if j.BatchSize < 1 {
		j.BatchSize = 1
	}
}
