package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/domain/model"
)

// RedisConnOpt builds the asynq connection option from the shared Redis configuration.
//
//nolint:ireturn // asynq selects the client kind from the option's concrete type.
func RedisConnOpt(cfg config.RedisConfig) (asynq.RedisConnOpt, error) {
	if cfg.UseSentinel {
		return asynq.RedisFailoverClientOpt{
			MasterName:       cfg.SentinelMasterName,
			SentinelAddrs:    cfg.SentinelNodes,
			SentinelPassword: cfg.SentinelPassword,
			Password:         cfg.Password,
			DB:               cfg.DB,
		}, nil
	}
	uri := strings.TrimSpace(cfg.URI)
	if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
		opt, err := asynq.ParseRedisURI(uri)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{
		Addr:     uri,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// Client enqueues ingest messages. Producers in other processes use the same task types
// and JSON payloads.
type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

// NewClient constructs a Client on redis.
func NewClient(redis asynq.RedisConnOpt, cfg config.IngestConfig) (*Client, error) {
	if redis == nil {
		return nil, errors.New("redis connection option is required")
	}
	cfg.Sanitize()
	return &Client{
		client:   asynq.NewClient(redis),
		queue:    cfg.Queue,
		maxRetry: cfg.MaxRetry,
	}, nil
}

// EnqueueCheckpoint enqueues a finished checkpoint.
func (c *Client) EnqueueCheckpoint(ctx context.Context, msg model.CheckpointMessage) (*asynq.TaskInfo, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return c.enqueue(ctx, TypeResultCheckpoints, msg)
}

// EnqueueResult enqueues one result record.
func (c *Client) EnqueueResult(ctx context.Context, res model.Result) (*asynq.TaskInfo, error) {
	if res.JobID == "" {
		return nil, errors.New("job_id is required")
	}
	return c.enqueue(ctx, TypeResults, res)
}

// EnqueueJobSize enqueues a job size announcement.
func (c *Client) EnqueueJobSize(ctx context.Context, msg model.JobSizeMessage) (*asynq.TaskInfo, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return c.enqueue(ctx, TypeJobSizes, msg)
}

// EnqueueOutputFile enqueues a written output file.
func (c *Client) EnqueueOutputFile(ctx context.Context, msg model.OutputFileMessage) (*asynq.TaskInfo, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return c.enqueue(ctx, TypeOutputFiles, msg)
}

func (c *Client) enqueue(ctx context.Context, taskType string, v any) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", taskType, err)
	}
	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, payload),
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return info, nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
