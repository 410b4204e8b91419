package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/domain/model"
	"github.com/target/jobfeed/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func testConfig() config.CompletionConfig {
	return config.CompletionConfig{
		Stream:    "jobfeed:test:logs",
		Group:     "jobfeed-test",
		BatchSize: 8,
		Block:     100 * time.Millisecond,
		MaxLen:    1000,
	}
}

type handlerFunc func(ctx context.Context, evt model.JobEvent) error

func (f handlerFunc) Handle(ctx context.Context, evt model.JobEvent) error { return f(ctx, evt) }

type collector struct {
	mu     sync.Mutex
	events []model.JobEvent
	fail   map[string]bool
}

func (c *collector) Handle(_ context.Context, evt model.JobEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[evt.JobID] {
		return errors.New("database unavailable")
	}
	c.events = append(c.events, evt)
	return nil
}

func (c *collector) snapshot() []model.JobEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.JobEvent(nil), c.events...)
}

func TestParseEvent(t *testing.T) {
	evt, err := parseEvent(map[string]any{"job_id": "job-1", "event": model.EventAllCheckpointsProcessed})
	require.NoError(t, err)
	assert.Equal(t, model.JobEvent{JobID: "job-1", Event: model.EventAllCheckpointsProcessed}, evt)

	_, err = parseEvent(map[string]any{"event": "x"})
	assert.Error(t, err)
	_, err = parseEvent(map[string]any{"job_id": "job-1"})
	assert.Error(t, err)
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(ConsumerOptions{Handler: handlerFunc(nil)})
	require.Error(t, err)

	_, err = NewConsumer(ConsumerOptions{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})})
	require.Error(t, err)
}

func TestEventPublisher_Publish(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	pub, err := NewEventPublisher(client, testConfig())
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, model.JobEvent{JobID: "job-1", Event: model.EventAllCheckpointsProcessed}))
	require.Error(t, pub.Publish(ctx, model.JobEvent{Event: model.EventAllCheckpointsProcessed}))

	entries, err := client.XRange(ctx, testConfig().Stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job-1", entries[0].Values["job_id"])
	assert.Equal(t, model.EventAllCheckpointsProcessed, entries[0].Values["event"])
}

func TestConsumer_HandlesAndAcks(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	cfg := testConfig()

	pub, err := NewEventPublisher(client, cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// entries published before the group exists are still delivered
	require.NoError(t, pub.Publish(ctx, model.JobEvent{JobID: "job-1", Event: model.EventAllCheckpointsProcessed}))

	got := &collector{fail: map[string]bool{"job-bad": true}}
	consumer, err := NewConsumer(ConsumerOptions{Client: client, Handler: got, Config: cfg, Name: "c1"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.NoError(t, pub.Publish(ctx, model.JobEvent{JobID: "job-2", Event: model.EventAllCheckpointsProcessed}))
	require.NoError(t, pub.Publish(ctx, model.JobEvent{JobID: "job-bad", Event: model.EventAllCheckpointsProcessed}))
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: cfg.Stream,
		Values: map[string]any{"noise": "1"},
	}).Err())

	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"job-1", "job-2"}, []string{got.snapshot()[0].JobID, got.snapshot()[1].JobID})

	// only the failed entry stays pending
	require.Eventually(t, func() bool {
		pending, err := client.XPending(ctx, cfg.Stream, cfg.Group).Result()
		return err == nil && pending.Count == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumer_GroupAlreadyExists(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	cfg := testConfig()
	ctx := context.Background()

	require.NoError(t, client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err())

	consumer, err := NewConsumer(ConsumerOptions{Client: client, Handler: &collector{}, Config: cfg})
	require.NoError(t, err)
	assert.NoError(t, consumer.ensureGroup(ctx))
}
