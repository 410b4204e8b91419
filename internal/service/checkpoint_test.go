package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
	"github.com/target/jobfeed/internal/mocks"
	"github.com/target/jobfeed/internal/testutil"
)

func newAggregator(t *testing.T, store *memStore, events *eventLog) *CheckpointAggregator {
	t.Helper()
	agg, err := NewCheckpointAggregator(CheckpointAggregatorOptions{
		Repos:  CheckpointRepos{Jobs: store, Checkpoints: store},
		Events: events,
	})
	require.NoError(t, err)
	return agg
}

func checkpoint(jobID string, id string) model.CheckpointMessage {
	return model.CheckpointMessage{JobID: jobID, CheckpointID: model.CheckpointID(id), Payload: json.RawMessage(`{}`)}
}

func TestNewCheckpointAggregator(t *testing.T) {
	store := newMemStore()
	_, err := NewCheckpointAggregator(CheckpointAggregatorOptions{Repos: CheckpointRepos{Checkpoints: store}, Events: &eventLog{}})
	assert.Error(t, err)
	_, err = NewCheckpointAggregator(CheckpointAggregatorOptions{Repos: CheckpointRepos{Jobs: store}, Events: &eventLog{}})
	assert.Error(t, err)
	_, err = NewCheckpointAggregator(CheckpointAggregatorOptions{Repos: CheckpointRepos{Jobs: store, Checkpoints: store}})
	assert.Error(t, err)
}

func TestCheckpointAggregator_CompletesOnFinalCheckpoint(t *testing.T) {
	ctx := context.Background()
	job := testutil.NewJob().WithID("job-1").WithCheckpointsTotal(3).Build()
	store := newMemStore(job)
	events := &eventLog{}
	agg := newAggregator(t, store, events)

	require.NoError(t, agg.Handle(ctx, checkpoint("job-1", "0")))
	stored, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, stored.Status)
	assert.Equal(t, 0, events.count())

	require.NoError(t, agg.Handle(ctx, checkpoint("job-1", "1")))
	require.NoError(t, agg.Handle(ctx, checkpoint("job-1", "1")), "redelivery is idempotent")
	assert.Equal(t, 0, events.count())

	require.NoError(t, agg.Handle(ctx, checkpoint("job-1", "2")))
	require.Equal(t, 1, events.count())
	assert.Equal(t, model.JobEvent{JobID: "job-1", Event: model.EventAllCheckpointsProcessed}, events.events[0])

	n, err := store.CountByJobID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCheckpointAggregator_UnknownTotalNeverCompletes(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testutil.NewJob().WithID("job-1").Build())
	events := &eventLog{}
	agg := newAggregator(t, store, events)

	for i := range 5 {
		require.NoError(t, agg.Handle(ctx, checkpoint("job-1", fmt.Sprint(i))))
	}
	assert.Equal(t, 0, events.count())
}

func TestCheckpointAggregator_RedeliveryKeepsCompletedStatus(t *testing.T) {
	ctx := context.Background()
	job := testutil.NewJob().WithID("job-1").WithStatus(model.JobStatusCompleted).WithCheckpointsTotal(1).Build()
	store := newMemStore(job)
	agg := newAggregator(t, store, &eventLog{})

	require.NoError(t, agg.Handle(ctx, checkpoint("job-1", "0")))
	stored, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
}

func TestCheckpointAggregator_DeletedJobIsDropped(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	events := &eventLog{}
	agg := newAggregator(t, store, events)

	require.NoError(t, agg.Handle(ctx, checkpoint("gone", "0")))
	n, err := store.CountByJobID(ctx, "gone")
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is persisted for a missing job")
	assert.Zero(t, events.count())
}

func TestCheckpointAggregator_InvalidMessage(t *testing.T) {
	agg := newAggregator(t, newMemStore(), &eventLog{})
	err := agg.Handle(context.Background(), model.CheckpointMessage{JobID: "job-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCheckpointAggregator_RepositoryFailures(t *testing.T) {
	ctx := context.Background()
	job := testutil.NewJob().WithID("job-1").WithCheckpointsTotal(2).Build()

	tests := []struct {
		name    string
		setup   func(jobs *mocks.MockJobRepository, cps *mocks.MockCheckpointRepository, ev *mocks.MockEventPublisher)
		wantErr bool
	}{
		{
			name: "mark processing failure propagates",
			setup: func(jobs *mocks.MockJobRepository, _ *mocks.MockCheckpointRepository, _ *mocks.MockEventPublisher) {
				jobs.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(nil, errors.New("connection refused"))
			},
			wantErr: true,
		},
		{
			name: "job deleted between update and upsert",
			setup: func(jobs *mocks.MockJobRepository, cps *mocks.MockCheckpointRepository, _ *mocks.MockEventPublisher) {
				jobs.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(job, nil)
				cps.EXPECT().Upsert(gomock.Any(), gomock.Any()).
					Return(&apperrors.AppError{Code: apperrors.ErrCodeForeignKey, Message: "job does not exist"})
			},
		},
		{
			name: "upsert failure propagates",
			setup: func(jobs *mocks.MockJobRepository, cps *mocks.MockCheckpointRepository, _ *mocks.MockEventPublisher) {
				jobs.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(job, nil)
				cps.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
			},
			wantErr: true,
		},
		{
			name: "job deleted before re-read",
			setup: func(jobs *mocks.MockJobRepository, cps *mocks.MockCheckpointRepository, _ *mocks.MockEventPublisher) {
				jobs.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(job, nil)
				cps.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
				cps.EXPECT().CountByJobID(gomock.Any(), "job-1").Return(2, nil)
				jobs.EXPECT().GetByID(gomock.Any(), "job-1").Return(nil, apperrors.NotFound("job job-1 not found"))
			},
		},
		{
			name: "publish failure propagates",
			setup: func(jobs *mocks.MockJobRepository, cps *mocks.MockCheckpointRepository, ev *mocks.MockEventPublisher) {
				jobs.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(job, nil)
				cps.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
				cps.EXPECT().CountByJobID(gomock.Any(), "job-1").Return(2, nil)
				jobs.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
				ev.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			jobs := mocks.NewMockJobRepository(ctrl)
			cps := mocks.NewMockCheckpointRepository(ctrl)
			ev := mocks.NewMockEventPublisher(ctrl)
			tt.setup(jobs, cps, ev)

			agg, err := NewCheckpointAggregator(CheckpointAggregatorOptions{
				Repos:  CheckpointRepos{Jobs: jobs, Checkpoints: cps},
				Events: ev,
			})
			require.NoError(t, err)

			err = agg.Handle(ctx, checkpoint("job-1", "1"))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckpointAggregator_PersistsComposedRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	jobs := mocks.NewMockJobRepository(ctrl)
	cps := mocks.NewMockCheckpointRepository(ctrl)
	job := testutil.NewJob().WithID("job-1").Build()

	jobs.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(job, nil)
	cps.EXPECT().Upsert(gomock.Any(), model.ResultCheckpoint{
		ID:           "job-1-7",
		JobID:        "job-1",
		CheckpointID: "7",
		JobType:      job.JobType,
		Payload:      json.RawMessage(`{}`),
	}).Return(nil)
	cps.EXPECT().CountByJobID(gomock.Any(), "job-1").Return(1, nil)
	jobs.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)

	agg, err := NewCheckpointAggregator(CheckpointAggregatorOptions{
		Repos:  CheckpointRepos{Jobs: jobs, Checkpoints: cps},
		Events: mocks.NewMockEventPublisher(ctrl),
	})
	require.NoError(t, err)
	require.NoError(t, agg.Handle(context.Background(), checkpoint("job-1", "7")))
}

// permutations returns every ordering of items.
func permutations[T any](items []T) [][]T {
	if len(items) <= 1 {
		return [][]T{append([]T(nil), items...)}
	}
	var out [][]T
	for i := range items {
		rest := make([]T, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]T{items[i]}, p...))
		}
	}
	return out
}

func TestCompletion_EveryArrivalOrder(t *testing.T) {
	// Three checkpoints (one redelivered) and the size message, in every order.
	steps := []string{"cp:0", "cp:1", "cp:2", "cp:1", "size"}
	ctx := context.Background()

	for _, order := range permutations(steps) {
		store := newMemStore(testutil.NewJob().WithID("job-1").Build())
		events := &eventLog{}
		agg := newAggregator(t, store, events)
		sizes, err := NewJobSizeUpdater(JobSizeUpdaterOptions{
			Repos:  CheckpointRepos{Jobs: store, Checkpoints: store},
			Events: events,
		})
		require.NoError(t, err)

		for _, step := range order {
			if step == "size" {
				require.NoError(t, sizes.Handle(ctx, model.JobSizeMessage{JobID: "job-1", NumCheckpointsTotal: testutil.IntPtr(3)}))
			} else {
				require.NoError(t, agg.Handle(ctx, checkpoint("job-1", step[3:])))
			}

			n, err := store.CountByJobID(ctx, "job-1")
			require.NoError(t, err)
			job, err := store.GetByID(ctx, "job-1")
			require.NoError(t, err)
			if events.count() > 0 {
				require.True(t, model.AllCheckpointsProcessed(n, job.NumCheckpointsTotal),
					"premature completion in order %v", order)
			}
		}
		assert.GreaterOrEqual(t, events.count(), 1, "completion missed in order %v", order)
	}
}

func TestCompletion_ConcurrentHandlers(t *testing.T) {
	ctx := context.Background()
	const total = 20
	store := newMemStore(testutil.NewJob().WithID("job-1").WithCheckpointsTotal(total).Build())
	events := &eventLog{}
	agg := newAggregator(t, store, events)

	var wg sync.WaitGroup
	for i := range total {
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, agg.Handle(ctx, checkpoint("job-1", fmt.Sprint(i))))
			}()
		}
	}
	wg.Wait()

	assert.GreaterOrEqual(t, events.count(), 1)
	for _, evt := range events.events {
		assert.Equal(t, "job-1", evt.JobID)
	}
}
