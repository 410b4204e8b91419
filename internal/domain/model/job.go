// Package model defines the core data types shared by the jobfeed ingest pipeline and live feeds.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusSubmitted indicates the job was accepted but no checkpoint arrived yet.
	JobStatusSubmitted JobStatus = "submitted"
	// JobStatusProcessing indicates at least one checkpoint was persisted.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates every checkpoint was persisted and the completion event was consumed.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job was aborted.
	JobStatusFailed JobStatus = "failed"
)

// DefaultPageSize is the page size used when a job is created without one.
const DefaultPageSize = 10

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusSubmitted || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether the status must not be changed by redelivered messages.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is a submitted batch of entries and the progress recorded for it.
type Job struct {
	ID       string          `json:"id"`
	JobType  string          `json:"job_type"`
	SourceID string          `json:"source_id"`
	Params   json.RawMessage `json:"params"`
	Status   JobStatus       `json:"status"`
	PageSize int             `json:"page_size"`

	EntriesProcessed IntervalSet `json:"entries_processed"`
	NumEntriesTotal  *int64      `json:"num_entries_total,omitempty"`

	// CheckpointsProcessed is read from the persisted checkpoints, never stored on the job row.
	CheckpointsProcessed []string `json:"checkpoints_processed"`
	NumCheckpointsTotal  *int     `json:"num_checkpoints_total,omitempty"`

	OutputFormats []string  `json:"output_formats"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AllCheckpointsProcessed reports whether the number of distinct persisted checkpoints has reached
// the announced total. An unknown total is never reached.
func AllCheckpointsProcessed(count int, total *int) bool {
	return total != nil && count == *total
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	ID       string          `json:"id"`
	JobType  string          `json:"job_type"`
	SourceID string          `json:"source_id"`
	Params   json.RawMessage `json:"params,omitempty"`
	PageSize int             `json:"page_size,omitempty"`
}

// Validate validates the CreateJobRequest fields and applies defaults.
func (r *CreateJobRequest) Validate() error {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.PageSize == 0 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize < 0 {
		return fmt.Errorf("page_size must be positive, got %d", r.PageSize)
	}
	if len(r.Params) == 0 {
		r.Params = json.RawMessage(`{}`)
	}
	return nil
}
