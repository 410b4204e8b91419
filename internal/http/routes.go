package httpx

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/jobfeed/internal/core"
	"github.com/target/jobfeed/internal/domain/model"
	"github.com/target/jobfeed/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Reader    *service.JobReader
	Watcher   *service.JobWatcher
	Feed      core.ChangeFeed
	Lifecycle *Lifecycle
	// Modules get their own copy of the job routes below /{module} and /websocket/{module}.
	Modules []model.Module
	// Checks back GET /readyz.
	Checks map[string]HealthCheck
	Logger *slog.Logger
}

// Route is one entry of the route table.
type Route struct {
	Pattern string
	Handler http.Handler
}

// Routes builds the route table: health endpoints, the module listing, and the job routes
// once at the root and once per module. Every job route is served with and without a
// trailing slash.
func Routes(s RouterServices) ([]Route, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	routes := []Route{
		{Pattern: "GET /healthz", Handler: http.HandlerFunc(healthHandler)},
		{Pattern: "HEAD /healthz", Handler: http.HandlerFunc(healthHandler)},
		{Pattern: "GET /readyz", Handler: readyHandler(s.Checks)},
		{Pattern: "GET /modules", Handler: modulesHandler(s.Modules)},
	}
	routes = append(routes, jobRoutes("", s, logger)...)

	seen := map[string]struct{}{}
	for _, m := range s.Modules {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("module %q registered twice", m.ID)
		}
		seen[m.ID] = struct{}{}
		routes = append(routes, jobRoutes(m.ID, s, logger)...)
	}
	return routes, nil
}

func jobRoutes(module string, s RouterServices, logger *slog.Logger) []Route {
	prefix, wsPrefix := "", "/websocket"
	if module != "" {
		prefix = "/" + module
		wsPrefix = "/websocket/" + module
	}

	jobs := &JobHandlers{Reader: s.Reader, Module: module, Logger: logger}
	jobStream := &JobStreamer{Reader: s.Reader, Watcher: s.Watcher, Lifecycle: s.Lifecycle, Module: module}
	resultStream := &ResultStreamer{Reader: s.Reader, Feed: s.Feed, Lifecycle: s.Lifecycle, Module: module}

	var out []Route
	add := func(path string, h http.Handler) {
		out = append(out,
			Route{Pattern: "GET " + path, Handler: h},
			Route{Pattern: "GET " + path + "/{$}", Handler: h},
		)
	}
	add(prefix+"/jobs/{job_id}", http.HandlerFunc(jobs.GetJob))
	add(prefix+"/jobs/{job_id}/results", http.HandlerFunc(jobs.GetResults))
	add(wsPrefix+"/jobs/{job_id}", jobStream)
	add(wsPrefix+"/jobs/{job_id}/results", resultStream)
	return out
}

func modulesHandler(modules []model.Module) http.HandlerFunc {
	visible := make([]model.Module, 0, len(modules))
	for _, m := range modules {
		if m.Visible {
			visible = append(visible, m)
		}
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, visible)
	}
}

// NewRouter creates the HTTP handler with logging and panic recovery.
func NewRouter(s RouterServices) (http.Handler, error) {
	routes, err := Routes(s)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return Recover(logger)(Logging(logger)(mux)), nil
}
