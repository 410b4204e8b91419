package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://app.example.com").
	// Used for job_url, results_url and output file links in job views. Output files
	// (/jobs/{id}/output.{format}) are served by the file service behind the same address.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// MaxConnections caps concurrently accepted connections, WebSockets included. 0 disables the cap.
	MaxConnections int `env:"HTTP_MAX_CONNECTIONS" envDefault:"1024"`

	// ShutdownTimeout bounds graceful shutdown of the server.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	if h.MaxConnections < 0 {
		h.MaxConnections = 0
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}

// WebSocketConfig contains live connection settings.
type WebSocketConfig struct {
	// PingPeriod is how often the server pings an idle connection.
	PingPeriod time.Duration `env:"WS_PING_PERIOD" envDefault:"30s"`

	// WriteWait bounds a single frame write.
	WriteWait time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`

	// ReadLimit is the largest client frame accepted, in bytes.
	ReadLimit int64 `env:"WS_READ_LIMIT" envDefault:"4096"`

	// AllowedOrigins restricts browser origins; empty allows any origin.
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
}

// PongWait is how long the server waits for any client frame before it treats the peer as gone.
func (w WebSocketConfig) PongWait() time.Duration {
	return w.PingPeriod * 10 / 9
}

// Sanitize applies guardrails to WebSocket configuration values.
func (w *WebSocketConfig) Sanitize() {
	if w.PingPeriod < time.Second {
		w.PingPeriod = time.Second
	}
	if w.WriteWait <= 0 {
		w.WriteWait = 10 * time.Second
	}
	if w.ReadLimit <= 0 {
		w.ReadLimit = 4096
	}
	origins := w.AllowedOrigins[:0]
	for _, o := range w.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	w.AllowedOrigins = origins
}
