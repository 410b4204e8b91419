package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/domain/model"
	obserrors "github.com/target/jobfeed/internal/observability/errors"
)

// claimIdle is how long an entry may stay unacknowledged by another consumer before it is taken over.
const claimIdle = time.Minute

// EventHandler applies one job event.
type EventHandler interface {
	Handle(ctx context.Context, evt model.JobEvent) error
}

// ConsumerOptions groups dependencies for Consumer.
type ConsumerOptions struct {
	Client  redis.UniversalClient   // Required
	Handler EventHandler            // Required
	Config  config.CompletionConfig // Optional; sanitized
	Logger  *slog.Logger            // Optional
	// Name identifies this consumer in the group. Defaults to a random id.
	Name string
}

// Consumer reads job events through a consumer group. An entry is acknowledged once its
// handler succeeds; failed entries stay pending and are retried after claimIdle.
type Consumer struct {
	client  redis.UniversalClient
	handler EventHandler
	cfg     config.CompletionConfig
	name    string
	logger  *slog.Logger
}

// NewConsumer constructs a Consumer.
func NewConsumer(opts ConsumerOptions) (*Consumer, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("event handler is required")
	}
	cfg := opts.Config
	cfg.Sanitize()
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "consumer-" + uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  opts.Client,
		handler: opts.Handler,
		cfg:     cfg,
		name:    name,
		logger:  logger.With("component", "completion_consumer", "stream", cfg.Stream, "consumer", name),
	}, nil
}

// Run consumes events until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "starting completion consumer", "group", c.cfg.Group)

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := c.poll(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			c.logger.ErrorContext(ctx, "read job events failed", "error", err, "error_class", obserrors.Classify(err))
			sleep(ctx, c.cfg.Block)
		case n == 0:
			if err := c.reclaim(ctx); err != nil && ctx.Err() == nil {
				c.logger.WarnContext(ctx, "reclaim pending events failed", "error", err)
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", c.cfg.Group, err)
	}
	return nil
}

// poll reads and handles one batch of new entries. It returns how many were read.
func (c *Consumer) poll(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("xreadgroup: %w", err)
	}
	n := 0
	for _, s := range streams {
		for _, msg := range s.Messages {
			c.process(ctx, msg)
			n++
		}
	}
	return n, nil
}

// reclaim takes over entries another consumer left unacknowledged and handles them.
func (c *Consumer) reclaim(ctx context.Context) error {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.name,
		MinIdle:  claimIdle,
		Start:    "0-0",
		Count:    c.cfg.BatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("xautoclaim: %w", err)
	}
	for _, msg := range msgs {
		c.process(ctx, msg)
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	evt, err := parseEvent(msg.Values)
	if err != nil {
		c.logger.WarnContext(ctx, "dropping malformed job event", "entry_id", msg.ID, "error", err)
		c.ack(ctx, msg.ID)
		return
	}
	if err := c.handler.Handle(ctx, evt); err != nil {
		c.logger.ErrorContext(ctx, "handle job event failed",
			"entry_id", msg.ID,
			"job_id", evt.JobID,
			"event", evt.Event,
			"error", err,
			"error_class", obserrors.Classify(err),
		)
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.logger.WarnContext(ctx, "ack job event failed", "entry_id", id, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
