// Package changefeed implements core.ChangeFeed on Postgres LISTEN/NOTIFY.
//
// Every subscription owns one connection outside the shared pool. The connection LISTENs on
// the scope's channel before the initial enumeration, so no change committed after the
// enumeration snapshot can be missed; changes whose transaction is visible in that snapshot
// are dropped so none is delivered twice.
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/target/jobfeed/internal/core"
	"github.com/target/jobfeed/internal/data/pgxutil"
	"github.com/target/jobfeed/internal/domain/model"
)

const (
	defaultBufferSize       = 64
	defaultMaxSubscriptions = 256
)

// Config holds configuration for a Feed.
type Config struct {
	DSN              string
	BufferSize       int
	MaxSubscriptions int
	// ApplicationName tags the dedicated connections in pg_stat_activity.
	ApplicationName string
	Logger          *slog.Logger
}

// Feed opens change subscriptions. It is safe for concurrent use.
type Feed struct {
	bufferSize int
	sem        *semaphore.Weighted
	open       func(ctx context.Context) (session, error)
	logger     *slog.Logger
}

var _ core.ChangeFeed = (*Feed)(nil)

// New creates a Feed that dials cfg.DSN for every subscription.
func New(cfg Config) (*Feed, error) {
	if cfg.DSN == "" {
		return nil, errors.New("changefeed: DSN is required")
	}
	dsn, appName := cfg.DSN, cfg.ApplicationName
	return newFeed(cfg, func(ctx context.Context) (session, error) {
		conn, err := pgxutil.Dial(ctx, dsn, appName)
		if err != nil {
			return nil, err
		}
		return &pgSession{conn: conn}, nil
	}), nil
}

func newFeed(cfg Config, open func(ctx context.Context) (session, error)) *Feed {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxSubscriptions <= 0 {
		cfg.MaxSubscriptions = defaultMaxSubscriptions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		bufferSize: cfg.BufferSize,
		sem:        semaphore.NewWeighted(int64(cfg.MaxSubscriptions)),
		open:       open,
		logger:     logger.With("component", "changefeed"),
	}
}

// Subscribe implements core.ChangeFeed.
func (f *Feed) Subscribe(ctx context.Context, scope model.Scope, includeInitial bool) (core.Subscription, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("changefeed: %w", err)
	}
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	sess, err := f.open(ctx)
	if err != nil {
		f.sem.Release(1)
		return nil, fmt.Errorf("changefeed: open session: %w", err)
	}

	channel := Channel(scope)
	fail := func(err error) (core.Subscription, error) {
		sess.close(channel)
		f.sem.Release(1)
		return nil, fmt.Errorf("changefeed: %w", err)
	}

	if err := sess.listen(ctx, channel); err != nil {
		return fail(err)
	}
	var (
		snap    string
		initial []model.Change
	)
	if includeInitial {
		if snap, initial, err = sess.snapshot(ctx, scope); err != nil {
			return fail(err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		scope:   scope,
		channel: channel,
		sess:    sess,
		out:     make(chan model.Change, f.bufferSize),
		cancel:  cancel,
		release: func() { f.sem.Release(1) },
		done:    make(chan struct{}),
		logger:  f.logger.With("table", scope.Table, "job_id", scope.JobID),
	}
	go sub.run(runCtx, snap, initial)
	return sub, nil
}

type subscription struct {
	scope   model.Scope
	channel string
	sess    session
	out     chan model.Change
	cancel  context.CancelFunc
	release func()
	done    chan struct{}
	logger  *slog.Logger

	mu  sync.Mutex
	err error
}

func (s *subscription) Changes() <-chan model.Change { return s.out }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the subscription and waits until its connection is released.
func (s *subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *subscription) run(ctx context.Context, snap string, initial []model.Change) {
	defer close(s.done)
	defer s.release()
	defer close(s.out)
	defer s.sess.close(s.channel)

	err := s.pump(ctx, snap, initial)
	if err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "subscription failed", "error", err)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}

func (s *subscription) pump(ctx context.Context, snap string, initial []model.Change) error {
	for _, c := range initial {
		if !s.send(ctx, c) {
			return ctx.Err()
		}
	}

	for {
		payload, err := s.sess.wait(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		seq, err := parseSeq(payload)
		if err != nil {
			s.logger.WarnContext(ctx, "ignoring notification", "error", err)
			continue
		}
		rec, found, err := s.sess.load(ctx, seq, snap)
		if err != nil {
			return err
		}
		if !found {
			s.logger.DebugContext(ctx, "change pruned before delivery", "seq", seq)
			continue
		}
		if rec.seen || !s.scope.Matches(rec.change.Table, rec.jobID, rec.molID) {
			continue
		}
		if !s.send(ctx, rec.change) {
			return ctx.Err()
		}
	}
}

// send blocks while the buffer is full so a slow reader stalls the feed instead of growing it.
func (s *subscription) send(ctx context.Context, c model.Change) bool {
	select {
	case s.out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
