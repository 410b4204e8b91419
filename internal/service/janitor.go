package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/core"
	"github.com/target/jobfeed/internal/observability/metrics"
	"github.com/target/jobfeed/internal/observability/statsd"
)

// JanitorServiceOptions groups dependencies for JanitorService.
type JanitorServiceOptions struct {
	Repo    core.ChangelogRepository // Required: change log repository
	Config  config.JanitorConfig     // Required: janitor configuration
	Logger  *slog.Logger             // Optional: structured logger
	Metrics statsd.Sink              // Optional: metrics sink (StatsD-compatible)
	// Now overrides the clock used to compute the retention cutoff.
	Now func() time.Time
}

// JanitorService prunes change log rows that no live subscriber can still need.
type JanitorService struct {
	repo    core.ChangelogRepository
	config  config.JanitorConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewJanitorService constructs a new JanitorService.
func NewJanitorService(opts JanitorServiceOptions) (*JanitorService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ChangelogRepository is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "janitor_service")
	logger.Debug("JanitorService initialized",
		"interval", cfg.Interval,
		"retention", cfg.Retention,
		"batch_size", cfg.BatchSize,
	)

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &JanitorService{
		repo:    opts.Repo,
		config:  cfg,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Run starts the janitor loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *JanitorService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting janitor service", "interval", s.config.Interval)

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.Prune(ctx); err != nil && !isContextCancellation(err) {
		s.logger.ErrorContext(ctx, "initial prune failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "janitor service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Prune(ctx); err != nil && !isContextCancellation(err) {
				// keep running; the next tick retries
				s.logger.ErrorContext(ctx, "prune failed", "error", err)
			}
		}
	}
}

// Prune deletes change rows older than the retention in batches until none are left.
// It returns the number of rows removed.
func (s *JanitorService) Prune(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := s.now().Add(-s.config.Retention)

	var total int64
	var err error
	for {
		var n int64
		n, err = s.repo.Prune(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			err = fmt.Errorf("prune change log: %w", err)
			break
		}
		total += n
		if n < int64(s.config.BatchSize) {
			break
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
	}

	metrics.EmitJanitor(s.metrics, total, time.Since(start), suppressContextCancellation(err))
	if total > 0 {
		s.logger.InfoContext(ctx, "pruned change log", "count", total, "cutoff", cutoff)
	}
	return total, err
}

// waitWithJitter adds a random delay up to 10% of the interval so replicas started together
// do not prune in lockstep.
func (s *JanitorService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
