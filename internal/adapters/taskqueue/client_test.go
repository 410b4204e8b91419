package taskqueue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobfeed/config"
	"github.com/target/jobfeed/internal/domain/model"
	"github.com/target/jobfeed/internal/testutil"
)

func TestRedisConnOpt(t *testing.T) {
	direct, err := RedisConnOpt(config.RedisConfig{URI: "cache:6379", Password: "pw", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, asynq.RedisClientOpt{Addr: "cache:6379", Password: "pw", DB: 2}, direct)

	fromURL, err := RedisConnOpt(config.RedisConfig{URI: "redis://:secret@cache:6380/3"})
	require.NoError(t, err)
	urlOpt, ok := fromURL.(asynq.RedisClientOpt)
	require.True(t, ok)
	assert.Equal(t, "cache:6380", urlOpt.Addr)
	assert.Equal(t, "secret", urlOpt.Password)
	assert.Equal(t, 3, urlOpt.DB)

	failover, err := RedisConnOpt(config.RedisConfig{
		UseSentinel:        true,
		SentinelNodes:      []string{"s1:26379", "s2:26379"},
		SentinelMasterName: "primary",
		SentinelPassword:   "spw",
		Password:           "pw",
	})
	require.NoError(t, err)
	opt, ok := failover.(asynq.RedisFailoverClientOpt)
	require.True(t, ok)
	assert.Equal(t, "primary", opt.MasterName)
	assert.Equal(t, []string{"s1:26379", "s2:26379"}, opt.SentinelAddrs)
	assert.Equal(t, "spw", opt.SentinelPassword)
}

func TestClient_RejectsInvalidMessages(t *testing.T) {
	c, err := NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, config.IngestConfig{})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, err = c.EnqueueCheckpoint(ctx, model.CheckpointMessage{JobID: "job-1"})
	require.Error(t, err)
	_, err = c.EnqueueResult(ctx, model.Result{MolID: 1})
	require.Error(t, err)
	_, err = c.EnqueueJobSize(ctx, model.JobSizeMessage{JobID: "job-1"})
	require.Error(t, err)
	_, err = c.EnqueueOutputFile(ctx, model.OutputFileMessage{JobID: "job-1"})
	require.Error(t, err)
}

func TestClient_EnqueueIntegration(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	defer rdb.Close()

	opt := asynq.RedisClientOpt{Addr: rdb.Options().Addr, DB: rdb.Options().DB}
	c, err := NewClient(opt, config.IngestConfig{Queue: "jobfeed-test", MaxRetry: 3})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	info, err := c.EnqueueCheckpoint(ctx, model.CheckpointMessage{
		JobID:        "job-1",
		CheckpointID: "2",
		Payload:      json.RawMessage(`{"rows":5}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "jobfeed-test", info.Queue)
	assert.Equal(t, 3, info.MaxRetry)

	_, err = c.EnqueueResult(ctx, testutil.NewResult("job-1", 4, map[string]any{"score": 1}))
	require.NoError(t, err)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()
	pending, err := inspector.ListPendingTasks("jobfeed-test")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	types := []string{pending[0].Type, pending[1].Type}
	assert.ElementsMatch(t, []string{TypeResultCheckpoints, TypeResults}, types)

	// the enqueued payload must round-trip through the worker mux
	mux, r := newMux(t)
	for _, p := range pending {
		require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(p.Type, p.Payload)))
	}
	require.Len(t, r.checkpoints.got, 1)
	assert.Equal(t, model.CheckpointID("2"), r.checkpoints.got[0].CheckpointID)
	require.Len(t, r.results.got, 1)
	assert.Equal(t, int64(4), r.results.got[0].MolID)
}
