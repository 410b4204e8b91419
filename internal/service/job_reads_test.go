package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
	"github.com/target/jobfeed/internal/mocks"
	"github.com/target/jobfeed/internal/testutil"
)

func TestPageWindow(t *testing.T) {
	sized := testutil.NewJob().WithPageSize(10).WithEntriesTotal(15).Build()
	open := testutil.NewJob().WithPageSize(10).Build()

	tests := []struct {
		name  string
		job   *model.Job
		page  int
		want  model.MolRange
		inErr bool
	}{
		{name: "first page", job: open, page: 1, want: model.MolRange{First: 0, Last: 9}},
		{name: "second page", job: open, page: 2, want: model.MolRange{First: 10, Last: 19}},
		{name: "unknown size has no last page", job: open, page: 1000, want: model.MolRange{First: 9990, Last: 9999}},
		{name: "short last page", job: sized, page: 2, want: model.MolRange{First: 10, Last: 14}},
		{name: "past the end", job: sized, page: 3, inErr: true},
		{name: "page zero", job: sized, page: 0, inErr: true},
		{name: "negative page", job: open, page: -1, inErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window, err := PageWindow(tt.job, tt.page)
			if tt.inErr {
				assert.True(t, apperrors.IsOutOfRange(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, window)
		})
	}
}

func TestJobReader_ModuleScoping(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testutil.NewJob().WithID("job-1").Build())
	r, err := NewJobReader(JobReaderOptions{Jobs: store, Results: mocks.NewMockResultRepository(gomock.NewController(t))})
	require.NoError(t, err)

	_, err = r.Job(ctx, "", "job-1")
	require.NoError(t, err)
	_, err = r.Job(ctx, "test-module", "job-1")
	require.NoError(t, err)
	_, err = r.Job(ctx, "other", "job-1")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = r.Job(ctx, "", "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestJobReader_ResultsPage(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	results := mocks.NewMockResultRepository(ctrl)
	store := newMemStore(testutil.NewJob().WithID("job-1").WithPageSize(5).Build())

	results.EXPECT().ListWindow(gomock.Any(), "job-1", model.MolRange{First: 5, Last: 9}).
		Return([]model.Result{testutil.NewResult("job-1", 6, nil)}, nil)
	results.EXPECT().ListWindow(gomock.Any(), "job-1", model.MolRange{First: 10, Last: 14}).Return(nil, nil)

	r, err := NewJobReader(JobReaderOptions{Jobs: store, Results: results})
	require.NoError(t, err)

	page, err := r.ResultsPage(ctx, "", "job-1", 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(6), page[0].MolID)

	page, err = r.ResultsPage(ctx, "", "job-1", 3)
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Empty(t, page)

	_, err = r.ResultsPage(ctx, "", "job-1", 0)
	assert.True(t, apperrors.IsOutOfRange(err))
}

func TestJobReader_View(t *testing.T) {
	store := newMemStore(testutil.NewJob().WithID("job-1").WithPageSize(10).WithEntriesTotal(25).WithProcessed(0, 1, 2).Build())
	r, err := NewJobReader(JobReaderOptions{
		Jobs:    store,
		Results: mocks.NewMockResultRepository(gomock.NewController(t)),
		BaseURL: "https://feed.example/",
	})
	require.NoError(t, err)

	v, err := r.View(context.Background(), "", "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.NumEntriesProcessed)
	require.NotNil(t, v.NumPagesTotal)
	assert.Equal(t, int64(3), *v.NumPagesTotal)
	assert.Equal(t, "https://feed.example/jobs/job-1", v.JobURL)

	_, err = r.View(context.Background(), "", "missing")
	assert.True(t, apperrors.IsNotFound(err))
}
