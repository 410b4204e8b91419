// Package data implements the core repository ports on Postgres.
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/target/jobfeed/internal/data/pgxutil"
	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
)

// RepoConfig holds configuration options shared by the repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for jobs.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{DB: db, timeProvider: tp, logger: logger.With("component", "job_repo")}
}

const jobColumns = `
  j.id,
  j.job_type,
  j.source_id,
  j.params,
  j.status,
  j.page_size,
  j.entries_processed,
  j.num_entries_total,
  j.num_checkpoints_total,
  j.output_formats,
  j.created_at,
  j.updated_at,
  COALESCE(
    (SELECT jsonb_agg(c.checkpoint_id ORDER BY c.checkpoint_id)
       FROM result_checkpoints c WHERE c.job_id = j.id),
    '[]'::jsonb
  ) AS checkpoints_processed
`

func scanJob(row pgx.CollectableRow) (*model.Job, error) {
	var (
		job           model.Job
		status        string
		entries       []byte
		outputFormats []byte
		checkpoints   []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.JobType,
		&job.SourceID,
		&job.Params,
		&status,
		&job.PageSize,
		&entries,
		&job.NumEntriesTotal,
		&job.NumCheckpointsTotal,
		&outputFormats,
		&job.CreatedAt,
		&job.UpdatedAt,
		&checkpoints,
	); err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)
	if err := json.Unmarshal(entries, &job.EntriesProcessed); err != nil {
		return nil, fmt.Errorf("decode entries_processed: %w", err)
	}
	if err := json.Unmarshal(outputFormats, &job.OutputFormats); err != nil {
		return nil, fmt.Errorf("decode output_formats: %w", err)
	}
	if err := json.Unmarshal(checkpoints, &job.CheckpointsProcessed); err != nil {
		return nil, fmt.Errorf("decode checkpoints_processed: %w", err)
	}
	return &job, nil
}

// Create inserts a new job in the submitted state.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job")
	}

	now := r.timeProvider.Now()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO jobs (id, job_type, source_id, params, page_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, req.ID, req.JobType, req.SourceID, []byte(req.Params), req.PageSize, now)
	if err != nil {
		return nil, fmt.Errorf("create job %s: %w", req.ID, apperrors.MapDBError(err))
	}
	return r.GetByID(ctx, req.ID)
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+jobColumns+` FROM jobs j WHERE j.id = $1`, id)
		if err != nil {
			return err
		}
		job, err = pgx.CollectExactlyOneRow(rows, scanJob)
		return err
	})
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsNotFound(mapped) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, mapped)
	}
	return job, nil
}

// MarkProcessing moves a submitted job to processing and returns the stored job.
// Completed and failed jobs are left untouched.
func (r *JobRepo) MarkProcessing(ctx context.Context, id string) (*model.Job, error) {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE jobs SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status = 'submitted'
	`, id, r.timeProvider.Now()); err != nil {
		return nil, fmt.Errorf("mark job %s processing: %w", id, apperrors.MapDBError(err))
	}
	return r.GetByID(ctx, id)
}

// MarkCompleted moves a job to completed. It reports whether the status changed.
func (r *JobRepo) MarkCompleted(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', updated_at = $2
		WHERE id = $1 AND status IN ('submitted', 'processing')
	`, id, r.timeProvider.Now())
	if err != nil {
		return false, fmt.Errorf("mark job %s completed: %w", id, apperrors.MapDBError(err))
	}
	return r.changedOrMissing(ctx, id, res)
}

// AddProcessedEntry adds molID to entries_processed under a row lock.
func (r *JobRepo) AddProcessedEntry(ctx context.Context, id string, molID int64) (bool, error) {
	var changed bool
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var raw []byte
			if err := tx.QueryRow(ctx,
				`SELECT entries_processed FROM jobs WHERE id = $1 FOR UPDATE`, id,
			).Scan(&raw); err != nil {
				return err
			}
			var set model.IntervalSet
			if err := json.Unmarshal(raw, &set); err != nil {
				return fmt.Errorf("decode entries_processed: %w", err)
			}
			if changed = set.Add(molID); !changed {
				return nil
			}
			encoded, err := json.Marshal(set)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`UPDATE jobs SET entries_processed = $2, updated_at = $3 WHERE id = $1`,
				id, encoded, r.timeProvider.Now())
			return err
		},
	})
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsNotFound(mapped) {
			return false, apperrors.NotFoundf("job %s not found", id)
		}
		return false, fmt.Errorf("add processed entry %d to job %s: %w", molID, id, mapped)
	}
	return changed, nil
}

// SetSize records the announced totals. Totals absent from msg are kept.
func (r *JobRepo) SetSize(ctx context.Context, msg model.JobSizeMessage) (*model.Job, error) {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE jobs SET
			num_entries_total = COALESCE($2, num_entries_total),
			num_checkpoints_total = COALESCE($3, num_checkpoints_total),
			updated_at = $4
		WHERE id = $1
		  AND (num_entries_total IS DISTINCT FROM COALESCE($2, num_entries_total)
		    OR num_checkpoints_total IS DISTINCT FROM COALESCE($3, num_checkpoints_total))
	`, msg.JobID, msg.NumEntriesTotal, msg.NumCheckpointsTotal, r.timeProvider.Now()); err != nil {
		return nil, fmt.Errorf("set size of job %s: %w", msg.JobID, apperrors.MapDBError(err))
	}
	return r.GetByID(ctx, msg.JobID)
}

// AddOutputFormat appends format to output_formats unless already present.
func (r *JobRepo) AddOutputFormat(ctx context.Context, id, format string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs SET
			output_formats = output_formats || jsonb_build_array($2::text),
			updated_at = $3
		WHERE id = $1 AND NOT output_formats @> jsonb_build_array($2::text)
	`, id, format, r.timeProvider.Now())
	if err != nil {
		return false, fmt.Errorf("add output format %s to job %s: %w", format, id, apperrors.MapDBError(err))
	}
	return r.changedOrMissing(ctx, id, res)
}

// Delete removes a job together with its checkpoints and results.
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if n == 0 {
		return apperrors.NotFoundf("job %s not found", id)
	}
	return nil
}

// changedOrMissing turns a conditional update result into (changed, NotFound).
func (r *JobRepo) changedOrMissing(ctx context.Context, id string, res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	ok, err := r.exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, apperrors.NotFoundf("job %s not found", id)
	}
	return false, nil
}

func (r *JobRepo) exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id,
	).Scan(&ok); err != nil {
		return false, fmt.Errorf("check job %s: %w", id, apperrors.MapDBError(err))
	}
	return ok, nil
}
