package taskqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
)

type recorder[T any] struct {
	got []T
	err error
}

func (r *recorder[T]) Handle(_ context.Context, msg T) error {
	r.got = append(r.got, msg)
	return r.err
}

type recorders struct {
	checkpoints *recorder[model.CheckpointMessage]
	results     *recorder[model.Result]
	sizes       *recorder[model.JobSizeMessage]
	outputs     *recorder[model.OutputFileMessage]
}

func newMux(t *testing.T) (*asynq.ServeMux, recorders) {
	t.Helper()
	r := recorders{
		checkpoints: &recorder[model.CheckpointMessage]{},
		results:     &recorder[model.Result]{},
		sizes:       &recorder[model.JobSizeMessage]{},
		outputs:     &recorder[model.OutputFileMessage]{},
	}
	mux, err := NewMux(Handlers{
		Checkpoints: r.checkpoints,
		Results:     r.results,
		Sizes:       r.sizes,
		Outputs:     r.outputs,
	})
	require.NoError(t, err)
	return mux, r
}

func TestNewMux_RequiresAllHandlers(t *testing.T) {
	_, err := NewMux(Handlers{Checkpoints: &recorder[model.CheckpointMessage]{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "result handler")
}

func TestNewServer_RequiresRedis(t *testing.T) {
	_, err := NewServer(ServerOptions{})
	require.Error(t, err)
}

func TestMux_RoutesByTaskType(t *testing.T) {
	ctx := context.Background()
	mux, r := newMux(t)

	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(TypeResultCheckpoints,
		[]byte(`{"job_id":"job-1","checkpoint_id":3,"payload":{"rows":10}}`))))
	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(TypeResults,
		[]byte(`{"job_id":"job-1","mol_id":7,"score":0.5}`))))
	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(TypeJobSizes,
		[]byte(`{"job_id":"job-1","num_entries_total":40,"num_checkpoints_total":4}`))))
	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(TypeOutputFiles,
		[]byte(`{"job_id":"job-1","format":"csv"}`))))

	require.Len(t, r.checkpoints.got, 1)
	assert.Equal(t, model.CheckpointID("3"), r.checkpoints.got[0].CheckpointID)
	assert.JSONEq(t, `{"rows":10}`, string(r.checkpoints.got[0].Payload))

	require.Len(t, r.results.got, 1)
	assert.Equal(t, int64(7), r.results.got[0].MolID)
	assert.JSONEq(t, `0.5`, string(r.results.got[0].Extra["score"]))

	require.Len(t, r.sizes.got, 1)
	assert.Equal(t, 4, *r.sizes.got[0].NumCheckpointsTotal)

	require.Len(t, r.outputs.got, 1)
	assert.Equal(t, "csv", r.outputs.got[0].Format)
}

func TestMux_MalformedPayloadSkipsRetry(t *testing.T) {
	ctx := context.Background()
	mux, r := newMux(t)

	tests := []struct {
		name     string
		taskType string
		payload  string
	}{
		{"not json", TypeResultCheckpoints, `{`},
		{"checkpoint id object", TypeResultCheckpoints, `{"job_id":"j","checkpoint_id":{}}`},
		{"result without mol id", TypeResults, `{"job_id":"j"}`},
		{"size wrong type", TypeJobSizes, `{"job_id":"j","num_entries_total":"many"}`},
		{"output array", TypeOutputFiles, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mux.ProcessTask(ctx, asynq.NewTask(tt.taskType, []byte(tt.payload)))
			require.Error(t, err)
			assert.ErrorIs(t, err, asynq.SkipRetry)
		})
	}
	assert.Empty(t, r.checkpoints.got)
	assert.Empty(t, r.results.got)
}

func TestMux_ValidationErrorSkipsRetry(t *testing.T) {
	mux, r := newMux(t)
	r.sizes.err = apperrors.Validation("at least one total is required")

	err := mux.ProcessTask(context.Background(), asynq.NewTask(TypeJobSizes, []byte(`{"job_id":"j"}`)))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMux_HandlerErrorIsRetried(t *testing.T) {
	mux, r := newMux(t)
	boom := errors.New("connection reset")
	r.outputs.err = boom

	err := mux.ProcessTask(context.Background(), asynq.NewTask(TypeOutputFiles,
		[]byte(`{"job_id":"j","format":"sdf"}`)))
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestMux_UnknownTaskType(t *testing.T) {
	mux, _ := newMux(t)
	err := mux.ProcessTask(context.Background(), asynq.NewTask("jobs", []byte(`{}`)))
	assert.Error(t, err)
}
