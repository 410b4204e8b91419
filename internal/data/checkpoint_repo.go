package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/target/jobfeed/internal/data/pgxutil"
	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
)

// CheckpointRepo persists processed checkpoints.
type CheckpointRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewCheckpointRepo creates a new CheckpointRepo.
func NewCheckpointRepo(db *sql.DB, cfg RepoConfig) *CheckpointRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &CheckpointRepo{DB: db, timeProvider: tp}
}

// Upsert inserts the checkpoint or replaces the record stored for the same job and checkpoint.
func (r *CheckpointRepo) Upsert(ctx context.Context, cp model.ResultCheckpoint) error {
	payload := []byte(cp.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO result_checkpoints (id, job_id, checkpoint_id, job_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id, checkpoint_id) DO UPDATE SET
			id = EXCLUDED.id,
			job_type = EXCLUDED.job_type,
			payload = EXCLUDED.payload
	`, cp.ID, cp.JobID, cp.CheckpointID, cp.JobType, payload, r.timeProvider.Now())
	if err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", cp.ID, apperrors.MapDBError(err))
	}
	return nil
}

// ListByJobID returns the checkpoints of a job ordered by checkpoint id.
func (r *CheckpointRepo) ListByJobID(ctx context.Context, jobID string) ([]model.ResultCheckpoint, error) {
	var out []model.ResultCheckpoint
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, job_id, checkpoint_id, job_type, payload, created_at
			FROM result_checkpoints
			WHERE job_id = $1
			ORDER BY checkpoint_id
		`, jobID)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ResultCheckpoint, error) {
			var cp model.ResultCheckpoint
			err := row.Scan(&cp.ID, &cp.JobID, &cp.CheckpointID, &cp.JobType, &cp.Payload, &cp.CreatedAt)
			return cp, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints of job %s: %w", jobID, apperrors.MapDBError(err))
	}
	return out, nil
}

// CountByJobID returns the number of distinct checkpoint records of a job.
func (r *CheckpointRepo) CountByJobID(ctx context.Context, jobID string) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM result_checkpoints WHERE job_id = $1`, jobID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count checkpoints of job %s: %w", jobID, apperrors.MapDBError(err))
	}
	return n, nil
}
