// Package core defines the ports between the jobfeed services and their storage and transport adapters.
package core

import (
	"context"
	"time"

	"github.com/target/jobfeed/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on the Postgres implementations.

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	// GetByID returns the job with CheckpointsProcessed filled from the persisted checkpoints.
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// MarkProcessing moves a submitted job to processing. Completed and failed jobs keep their
	// status. It returns the job as stored after the update, or a NotFound error.
	MarkProcessing(ctx context.Context, id string) (*model.Job, error)
	// MarkCompleted moves a job to completed. It reports whether the status changed.
	MarkCompleted(ctx context.Context, id string) (bool, error)
	// AddProcessedEntry adds molID to entries_processed. It reports whether the set changed.
	AddProcessedEntry(ctx context.Context, id string, molID int64) (bool, error)
	SetSize(ctx context.Context, msg model.JobSizeMessage) (*model.Job, error)
	// AddOutputFormat records a finished output format once. It reports whether it was new.
	AddOutputFormat(ctx context.Context, id, format string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// CheckpointRepository defines the interface for persisted checkpoint records.
type CheckpointRepository interface {
	// Upsert inserts or replaces the checkpoint under its deterministic id.
	Upsert(ctx context.Context, cp model.ResultCheckpoint) error
	ListByJobID(ctx context.Context, jobID string) ([]model.ResultCheckpoint, error)
	// CountByJobID returns the number of distinct persisted checkpoints of a job.
	CountByJobID(ctx context.Context, jobID string) (int, error)
}

// ResultRepository defines the interface for result records.
type ResultRepository interface {
	Upsert(ctx context.Context, r model.Result) error
	// ListWindow returns the results of a job whose mol_id lies in window, ordered by mol_id then id.
	ListWindow(ctx context.Context, jobID string, window model.MolRange) ([]model.Result, error)
}

// ChangelogRepository defines maintenance of the change log behind the live feeds.
type ChangelogRepository interface {
	// Prune deletes up to limit change rows created before cutoff and returns how many were removed.
	Prune(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// EventPublisher publishes outbound job events.
type EventPublisher interface {
	Publish(ctx context.Context, evt model.JobEvent) error
}

// ErrorReporter receives unexpected failures of long-lived connections.
type ErrorReporter interface {
	Report(ctx context.Context, err error, attrs map[string]string)
}
