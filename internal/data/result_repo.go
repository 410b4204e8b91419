package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/target/jobfeed/internal/data/pgxutil"
	"github.com/target/jobfeed/internal/domain/model"
	apperrors "github.com/target/jobfeed/internal/errors"
)

// ResultRepo persists result records. Extra fields live in the data column.
type ResultRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewResultRepo creates a new ResultRepo.
func NewResultRepo(db *sql.DB, cfg RepoConfig) *ResultRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &ResultRepo{DB: db, timeProvider: tp}
}

// Upsert inserts the result or replaces the record stored under the same id.
func (r *ResultRepo) Upsert(ctx context.Context, res model.Result) error {
	if res.ID == "" {
		return apperrors.ValidationField("id", "result id is required")
	}
	data, err := res.Data()
	if err != nil {
		return err
	}
	now := r.timeProvider.Now()
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO results (id, job_id, mol_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			mol_id = EXCLUDED.mol_id,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
		WHERE results.data IS DISTINCT FROM EXCLUDED.data
		   OR results.mol_id IS DISTINCT FROM EXCLUDED.mol_id
	`, res.ID, res.JobID, res.MolID, []byte(data), now)
	if err != nil {
		return fmt.Errorf("upsert result %s: %w", res.ID, apperrors.MapDBError(err))
	}
	return nil
}

// ListWindow returns the results of a job within window, ordered by mol_id then id.
func (r *ResultRepo) ListWindow(ctx context.Context, jobID string, window model.MolRange) ([]model.Result, error) {
	var out []model.Result
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT result_document(r)
			FROM results r
			WHERE r.job_id = $1 AND r.mol_id BETWEEN $2 AND $3
			ORDER BY r.mol_id, r.id
		`, jobID, window.First, window.Last)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Result, error) {
			var (
				doc []byte
				res model.Result
			)
			if err := row.Scan(&doc); err != nil {
				return res, err
			}
			err := json.Unmarshal(doc, &res)
			return res, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list results of job %s: %w", jobID, apperrors.MapDBError(err))
	}
	return out, nil
}
