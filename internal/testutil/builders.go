package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/target/jobfeed/internal/domain/model"
)

// JobBuilder provides a fluent interface for building model.Job values for tests.
type JobBuilder struct {
	job model.Job
}

// NewJob creates a JobBuilder with a random id and sensible defaults.
func NewJob() *JobBuilder {
	return &JobBuilder{job: model.Job{
		ID:        uuid.NewString(),
		JobType:   "test-module",
		SourceID:  "source-1",
		Params:    json.RawMessage(`{}`),
		Status:    model.JobStatusSubmitted,
		PageSize:  model.DefaultPageSize,
		CreatedAt: TestTime(),
		UpdatedAt: TestTime(),
	}}
}

// WithID sets the job id.
func (b *JobBuilder) WithID(id string) *JobBuilder {
	b.job.ID = id
	return b
}

// WithStatus sets the job status.
func (b *JobBuilder) WithStatus(s model.JobStatus) *JobBuilder {
	b.job.Status = s
	return b
}

// WithPageSize sets the page size.
func (b *JobBuilder) WithPageSize(n int) *JobBuilder {
	b.job.PageSize = n
	return b
}

// WithEntriesTotal sets num_entries_total.
func (b *JobBuilder) WithEntriesTotal(n int64) *JobBuilder {
	b.job.NumEntriesTotal = &n
	return b
}

// WithCheckpointsTotal sets num_checkpoints_total.
func (b *JobBuilder) WithCheckpointsTotal(n int) *JobBuilder {
	b.job.NumCheckpointsTotal = &n
	return b
}

// WithProcessed marks the given mol ids as processed.
func (b *JobBuilder) WithProcessed(ids ...int64) *JobBuilder {
	for _, id := range ids {
		b.job.EntriesProcessed.Add(id)
	}
	return b
}

// WithCreatedAt sets the creation time.
func (b *JobBuilder) WithCreatedAt(ts time.Time) *JobBuilder {
	b.job.CreatedAt = ts
	return b
}

// Build returns a copy of the constructed job.
func (b *JobBuilder) Build() *model.Job {
	j := b.job
	return &j
}

// CreateRequest returns the request that creates this job.
func (b *JobBuilder) CreateRequest() *model.CreateJobRequest {
	return &model.CreateJobRequest{
		ID:       b.job.ID,
		JobType:  b.job.JobType,
		SourceID: b.job.SourceID,
		Params:   b.job.Params,
		PageSize: b.job.PageSize,
	}
}

// NewResult returns a result of jobID for molID carrying the given extra fields.
func NewResult(jobID string, molID int64, extra map[string]any) model.Result {
	r := model.Result{JobID: jobID, MolID: molID}
	for k, v := range extra {
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage, len(extra))
		}
		r.Extra[k] = b
	}
	r.ID = r.DeriveID()
	return r
}
