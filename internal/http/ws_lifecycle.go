package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/core"
	apperrors "github.com/target/jobfeed/internal/errors"
	obserrors "github.com/target/jobfeed/internal/observability/errors"
	"github.com/target/jobfeed/internal/observability/metrics"
	"github.com/target/jobfeed/internal/observability/statsd"
)

// Close reasons sent with policy violations.
const (
	ReasonJobNotFound  = "job not found"
	ReasonInvalidPage  = "invalid page"
	ReasonPageOutRange = "page out of range"
)

var (
	errPeerGone = errors.New("peer went away")
	errShutdown = errors.New("server shutting down")
)

// Outcome is how a live session ended. It is one of Completed, Rejected, Gone or Failed.
type Outcome interface {
	name() string
}

// Completed ends the connection with a normal closure.
type Completed struct{}

// Rejected ends the connection with a policy violation or another explicit close code.
type Rejected struct {
	Code   int
	Reason string
}

// Gone means the peer is unreachable; no close frame is sent.
type Gone struct{}

// Failed ends the connection with an internal error and reports Err.
type Failed struct {
	Err error
}

func (Completed) name() string { return "completed" }
func (Rejected) name() string  { return "rejected" }
func (Gone) name() string      { return "gone" }
func (Failed) name() string    { return "failed" }

// Policy returns a 1008 rejection with reason.
func Policy(reason string) Rejected {
	return Rejected{Code: websocket.ClosePolicyViolation, Reason: reason}
}

// OutcomeOf maps the error a session ended with to its outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Completed{}
	case apperrors.IsNotFound(err):
		return Policy(ReasonJobNotFound)
	case apperrors.IsOutOfRange(err):
		return Policy(ReasonPageOutRange)
	case apperrors.IsTransportGone(err), errors.Is(err, context.Canceled):
		return Gone{}
	default:
		return Failed{Err: err}
	}
}

// Session runs one accepted live connection until it returns an outcome. ctx is canceled when
// the peer goes away or the process shuts down.
type Session func(ctx context.Context, conn *Conn) Outcome

// LifecycleOptions groups dependencies for Lifecycle.
type LifecycleOptions struct {
	Config   config.WebSocketConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Reporter core.ErrorReporter
	// Shutdown is canceled when the process stops; every open session is then ended.
	Shutdown context.Context
}

// Lifecycle owns the accept, keepalive and close discipline shared by all live feeds.
type Lifecycle struct {
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  statsd.Sink
	reporter core.ErrorReporter
	shutdown context.Context
}

// NewLifecycle constructs a Lifecycle.
func NewLifecycle(opts LifecycleOptions) *Lifecycle {
	cfg := opts.Config
	cfg.Sanitize()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	shutdown := opts.Shutdown
	if shutdown == nil {
		shutdown = context.Background()
	}
	origins := slices.Clone(cfg.AllowedOrigins)
	return &Lifecycle{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return slices.Contains(origins, r.Header.Get("Origin"))
			},
		},
		logger:   logger.With("component", "ws_lifecycle"),
		metrics:  opts.Metrics,
		reporter: opts.Reporter,
		shutdown: shutdown,
	}
}

// Serve upgrades the request and runs session on the connection. It returns once the
// connection is closed.
func (l *Lifecycle) Serve(w http.ResponseWriter, r *http.Request, feed string, session Session) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error response
		l.logger.WarnContext(r.Context(), "websocket upgrade failed", "path", r.URL.Path, "error", err)
		return
	}

	start := time.Now()
	conn := &Conn{
		ID:        uuid.NewString(),
		ws:        ws,
		writeWait: l.cfg.WriteWait,
	}
	logger := l.logger.With("conn_id", conn.ID, "feed", feed, "path", r.URL.Path)
	metrics.EmitStreamOpened(l.metrics, feed)

	ctx, cancel := context.WithCancelCause(context.WithoutCancel(r.Context()))
	defer cancel(nil)
	stopShutdown := context.AfterFunc(l.shutdown, func() { cancel(errShutdown) })
	defer stopShutdown()
	// abandon an in-flight write once the session is canceled
	stopDeadline := context.AfterFunc(ctx, func() { _ = ws.NetConn().SetWriteDeadline(time.Now()) })
	defer stopDeadline()

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		l.readPump(ws, cancel)
	}()
	go func() {
		defer pumps.Done()
		l.pingLoop(ctx, ws, cancel)
	}()

	out := session(ctx, conn)
	out = resolve(out, context.Cause(ctx))
	l.finish(ctx, ws, out, logger, r.PathValue("job_id"))
	cancel(nil)
	pumps.Wait()

	metrics.EmitStreamMessages(l.metrics, feed, conn.sent.Load())
	metrics.EmitStreamClosed(l.metrics, metrics.StreamMetric{
		Feed:     feed,
		Outcome:  out.name(),
		Duration: time.Since(start),
	})
}

// resolve lets the reason the session context ended override the session's own view.
func resolve(out Outcome, cause error) Outcome {
	switch {
	case errors.Is(cause, errPeerGone):
		return Gone{}
	case errors.Is(cause, errShutdown):
		return Rejected{Code: websocket.CloseGoingAway, Reason: errShutdown.Error()}
	}
	if out == nil {
		return Completed{}
	}
	return out
}

// finish sends the close frame for out and releases the connection.
func (l *Lifecycle) finish(ctx context.Context, ws *websocket.Conn, out Outcome, logger *slog.Logger, jobID string) {
	defer ws.Close()

	var frame []byte
	switch o := out.(type) {
	case Gone:
		logger.DebugContext(ctx, "peer gone")
		return
	case Completed:
		frame = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	case Rejected:
		logger.InfoContext(ctx, "session rejected", "code", o.Code, "reason", o.Reason)
		frame = websocket.FormatCloseMessage(o.Code, o.Reason)
	case Failed:
		logger.ErrorContext(ctx, "session failed", "error", o.Err, "error_class", obserrors.Classify(o.Err))
		l.report(ctx, o.Err, jobID)
		frame = websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error")
	}

	if err := ws.WriteControl(websocket.CloseMessage, frame, time.Now().Add(l.cfg.WriteWait)); err != nil {
		logger.DebugContext(ctx, "close frame not delivered", "error", err)
	}
}

func (l *Lifecycle) report(ctx context.Context, err error, jobID string) {
	if l.reporter == nil {
		return
	}
	attrs := map[string]string{"component": "ws_lifecycle"}
	if jobID != "" {
		attrs["job_id"] = jobID
	}
	l.reporter.Report(ctx, err, attrs)
}

// readPump consumes client frames so control frames are processed. Any read error means the
// peer is gone or sent something invalid; the session is canceled either way.
func (l *Lifecycle) readPump(ws *websocket.Conn, cancel context.CancelCauseFunc) {
	ws.SetReadLimit(l.cfg.ReadLimit)
	pongWait := l.cfg.PongWait()
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.NextReader(); err != nil {
			cancel(errPeerGone)
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (l *Lifecycle) pingLoop(ctx context.Context, ws *websocket.Conn, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(l.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.cfg.WriteWait)); err != nil {
				cancel(errPeerGone)
				return
			}
		}
	}
}

// Conn is the session's handle on an accepted connection. Send is safe for concurrent use.
type Conn struct {
	ID        string
	ws        *websocket.Conn
	writeWait time.Duration
	mu        sync.Mutex
	sent      atomic.Int64
}

// Send marshals v and writes it as one text frame.
func (c *Conn) Send(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return c.SendRaw(ctx, b)
}

// SendRaw writes b as one text frame. A failed write means the peer is gone.
func (c *Conn) SendRaw(ctx context.Context, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return apperrors.TransportGone(err)
	}
	// a cancel that landed after the first check may have had its forced deadline
	// overwritten above
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return apperrors.TransportGone(err)
	}
	c.sent.Add(1)
	return nil
}
