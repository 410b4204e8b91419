// Package redis provides Redis stream adapters for outbound job events.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/domain/model"
)

// Stream entry fields of a job event.
const (
	fieldJobID = "job_id"
	fieldEvent = "event"
)

// EventPublisher appends job events to a Redis stream.
type EventPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewEventPublisher creates a publisher writing to cfg.Stream.
func NewEventPublisher(client redis.UniversalClient, cfg config.CompletionConfig) (*EventPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	cfg.Sanitize()
	return &EventPublisher{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

// Publish appends evt. The stream is trimmed approximately to the configured length.
func (p *EventPublisher) Publish(ctx context.Context, evt model.JobEvent) error {
	if strings.TrimSpace(evt.JobID) == "" {
		return errors.New("job_id is required")
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{fieldJobID: evt.JobID, fieldEvent: evt.Event},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// parseEvent reads a job event from stream entry values.
func parseEvent(values map[string]any) (model.JobEvent, error) {
	jobID, _ := values[fieldJobID].(string)
	event, _ := values[fieldEvent].(string)
	if strings.TrimSpace(jobID) == "" {
		return model.JobEvent{}, errors.New("entry has no job_id")
	}
	if event == "" {
		return model.JobEvent{}, errors.New("entry has no event")
	}
	return model.JobEvent{JobID: jobID, Event: event}, nil
}
