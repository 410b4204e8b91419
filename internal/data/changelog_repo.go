package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/target/jobfeed/internal/errors"
)

// ChangelogRepo maintains the record_changes table written by the change triggers.
type ChangelogRepo struct {
	DB *sql.DB
}

// NewChangelogRepo creates a new ChangelogRepo.
func NewChangelogRepo(db *sql.DB) *ChangelogRepo {
	return &ChangelogRepo{DB: db}
}

// Prune deletes up to limit change rows created before cutoff, oldest first.
func (r *ChangelogRepo) Prune(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, apperrors.ValidationField("limit", "limit must be positive")
	}
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM record_changes
		WHERE seq IN (
			SELECT seq FROM record_changes
			WHERE created_at < $1
			ORDER BY seq
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("prune record changes: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune record changes: %w", err)
	}
	return n, nil
}
