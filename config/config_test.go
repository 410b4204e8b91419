package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - ingest",
			input:    "ingest",
			expected: map[ServiceMode]bool{ServiceModeIngest: true},
		},
		{
			name:  "all services with spaces",
			input: " http , ingest , completion , janitor ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:       true,
				ServiceModeIngest:     true,
				ServiceModeCompletion: true,
				ServiceModeJanitor:    true,
			},
		},
		{
			name:  "duplicate services",
			input: "http,http,janitor",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:    true,
				ServiceModeJanitor: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       " , ,",
			expectError: true,
		},
		{
			name:        "invalid service",
			input:       "http,scheduler",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d services, got %d", len(tt.expected), len(result))
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	cfg := AppConfig{Services: "http,janitor"}
	if !cfg.IsHTTPServerEnabled() {
		t.Error("IsHTTPServerEnabled(): expected true")
	}
	if !cfg.IsJanitorEnabled() {
		t.Error("IsJanitorEnabled(): expected true")
	}
	if cfg.IsIngestEnabled() || cfg.IsCompletionEnabled() {
		t.Error("ingest and completion must be disabled")
	}

	// All methods should return false when configuration is invalid
	cfg = AppConfig{Services: "invalid-service"}
	if cfg.IsHTTPServerEnabled() || cfg.IsIngestEnabled() || cfg.IsCompletionEnabled() || cfg.IsJanitorEnabled() {
		t.Error("expected every service to be disabled for invalid config")
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{ServiceModeHTTP, ServiceModeIngest, ServiceModeCompletion, ServiceModeJanitor}

	if len(modes) != len(expected) {
		t.Fatalf("expected %d service modes, got %d", len(expected), len(modes))
	}
	for i, mode := range modes {
		if mode != expected[i] {
			t.Errorf("expected service mode %s at index %d, got %s", expected[i], i, mode)
		}
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("SERVICES", "http,ingest")
	t.Setenv("MODULES", "cypstrate, skinsens:hidden ,")
	t.Setenv("APP_BASE_URL", "https://jobs.example.com/")
	t.Setenv("STREAM_BUFFER_SIZE", "8")
	t.Setenv("WS_PING_PERIOD", "9s")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PASSWORD", "p@ss/word")
	t.Setenv("JANITOR_RETENTION", "2h")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.HTTP.BaseURL != "https://jobs.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.HTTP.BaseURL)
	}
	if cfg.Stream.BufferSize != 8 || cfg.Stream.MaxSubscriptions != 256 {
		t.Errorf("unexpected stream config %+v", cfg.Stream)
	}
	if cfg.WebSocket.PongWait() != 10*time.Second {
		t.Errorf("expected pong wait 10s, got %v", cfg.WebSocket.PongWait())
	}
	if cfg.Janitor.Retention != 2*time.Hour || cfg.Janitor.BatchSize != 1000 {
		t.Errorf("unexpected janitor config %+v", cfg.Janitor)
	}
	if cfg.Completion.Stream != "jobfeed:logs" {
		t.Errorf("unexpected completion stream %q", cfg.Completion.Stream)
	}

	modules, err := cfg.ParsedModules()
	if err != nil {
		t.Fatalf("parse modules: %v", err)
	}
	if len(modules) != 2 || modules[0].ID != "cypstrate" || !modules[0].Visible || modules[1].Visible {
		t.Errorf("unexpected modules %+v", modules)
	}

	want := "postgres://jobfeed:p%40ss%2Fword@db:5432/jobfeed?sslmode=disable"
	if got := cfg.Postgres.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestSanitize_Guardrails(t *testing.T) {
	cfg := AppConfig{
		HTTP:       HTTPConfig{MaxConnections: -5},
		WebSocket:  WebSocketConfig{PingPeriod: time.Millisecond, AllowedOrigins: []string{" ", "https://a.example"}},
		Stream:     StreamConfig{BufferSize: 0, MaxSubscriptions: -1},
		Ingest:     IngestConfig{Concurrency: 0, Queue: " ", MaxRetry: -1},
		Completion: CompletionConfig{BatchSize: 0, Block: 0},
		Janitor:    JanitorConfig{Interval: 0, Retention: 0, BatchSize: 0},
		Observability: ObservabilityConfig{
			LogLevel: "LOUD",
		},
	}
	cfg.Sanitize()

	if cfg.HTTP.MaxConnections != 0 {
		t.Errorf("expected negative max connections to disable the cap, got %d", cfg.HTTP.MaxConnections)
	}
	if cfg.WebSocket.PingPeriod != time.Second || len(cfg.WebSocket.AllowedOrigins) != 1 {
		t.Errorf("unexpected websocket config %+v", cfg.WebSocket)
	}
	if cfg.Stream.BufferSize != 1 || cfg.Stream.MaxSubscriptions != 1 {
		t.Errorf("unexpected stream config %+v", cfg.Stream)
	}
	if cfg.Ingest.Concurrency != 1 || cfg.Ingest.Queue != "jobfeed" || cfg.Ingest.MaxRetry != 0 {
		t.Errorf("unexpected ingest config %+v", cfg.Ingest)
	}
	if cfg.Completion.Stream != "jobfeed:logs" || cfg.Completion.BatchSize != 1 {
		t.Errorf("unexpected completion config %+v", cfg.Completion)
	}
	if cfg.Janitor.Interval != time.Second || cfg.Janitor.Retention != time.Minute || cfg.Janitor.BatchSize != 1 {
		t.Errorf("unexpected janitor config %+v", cfg.Janitor)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected unknown log level to fall back to info, got %q", cfg.Observability.LogLevel)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit != 0 {
		t.Fatalf("expected retry limit to be clamped to 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatal("expected sinks to be disabled without credentials")
	}
	if cfg.Slack.Username != "jobfeed" || cfg.PagerDuty.Source != "jobfeed" {
		t.Fatalf("expected defaults, got %q / %q", cfg.Slack.Username, cfg.PagerDuty.Source)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Slack:     SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/services/test"},
		PagerDuty: PagerDutyNotificationConfig{Enabled: true, RoutingKey: "key"},
	}
	cfg.Sanitize()
	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatal("expected child sinks to follow the top-level switch")
	}
}
