package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/jobfeed/internal/core"
	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
)

// JobReaderOptions groups dependencies for JobReader.
type JobReaderOptions struct {
	Jobs    core.JobRepository    // Required
	Results core.ResultRepository // Required
	BaseURL string
}

// JobReader serves point-in-time reads of jobs, job views and result pages. Reads take the
// module the request was routed through; an empty module matches every job, otherwise only
// jobs of that job type are visible.
type JobReader struct {
	jobs    core.JobRepository
	results core.ResultRepository
	baseURL string
}

// NewJobReader constructs a new JobReader.
func NewJobReader(opts JobReaderOptions) (*JobReader, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Results == nil {
		return nil, errors.New("ResultRepository is required")
	}
	return &JobReader{jobs: opts.Jobs, results: opts.Results, baseURL: opts.BaseURL}, nil
}

// Job returns the job visible under module.
func (r *JobReader) Job(ctx context.Context, module, jobID string) (*model.Job, error) {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if module != "" && job.JobType != module {
		return nil, apperrors.NotFoundf("job %s not found in module %s", jobID, module)
	}
	return job, nil
}

// View returns the current view of a job.
func (r *JobReader) View(ctx context.Context, module, jobID string) (model.JobView, error) {
	job, err := r.Job(ctx, module, jobID)
	if err != nil {
		return model.JobView{}, err
	}
	return model.NewJobView(job, r.baseURL), nil
}

// ResultsPage returns the results currently stored for one page of a job.
func (r *JobReader) ResultsPage(ctx context.Context, module, jobID string, page int) ([]model.Result, error) {
	job, err := r.Job(ctx, module, jobID)
	if err != nil {
		return nil, err
	}
	window, err := PageWindow(job, page)
	if err != nil {
		return nil, err
	}
	results, err := r.results.ListWindow(ctx, jobID, window)
	if err != nil {
		return nil, fmt.Errorf("list results of job %s: %w", jobID, err)
	}
	if results == nil {
		results = []model.Result{}
	}
	return results, nil
}

// PageWindow returns the mol id window of a one-based page of job, or an OutOfRange error
// when the page lies outside the job. A job of unknown size has no last page.
func PageWindow(job *model.Job, page int) (model.MolRange, error) {
	window, ok := model.PageWindow(page, job.PageSize, job.NumEntriesTotal)
	if !ok {
		return model.MolRange{}, apperrors.OutOfRange(fmt.Sprintf("page %d of job %s is out of range", page, job.ID))
	}
	return window, nil
}
