package changefeed

import (
	"context"
	"crypto/md5" //nolint:gosec // channel naming only, must match md5() in the trigger
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/jobfeed/internal/data/pgxutil"
	"github.com/target/jobfeed/internal/domain/model"
)

// Channel returns the NOTIFY channel the change trigger uses for scope. md5 keeps the name
// under the 63 byte identifier limit for any job id.
func Channel(scope model.Scope) string {
	sum := md5.Sum([]byte(scope.JobID)) //nolint:gosec // see import
	return "jobfeed_" + string(scope.Table) + "_" + hex.EncodeToString(sum[:])
}

// record is one row of record_changes as seen by a subscription.
type record struct {
	change model.Change
	jobID  string
	molID  *int64
	// seen is true when the writing transaction was already visible to the initial snapshot.
	seen bool
}

// session is the per-subscription database connection.
type session interface {
	listen(ctx context.Context, channel string) error
	// snapshot enumerates the scope in one repeatable-read transaction and returns the
	// transaction snapshot together with the rows.
	snapshot(ctx context.Context, scope model.Scope) (string, []model.Change, error)
	// wait blocks until the next notification and returns its payload.
	wait(ctx context.Context) (string, error)
	// load reads a change row. found is false when the row was pruned.
	load(ctx context.Context, seq int64, snapshot string) (rec record, found bool, err error)
	close(channel string)
}

type pgSession struct {
	conn *pgx.Conn
}

func (s *pgSession) listen(ctx context.Context, channel string) error {
	if _, err := s.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}
	return nil
}

func (s *pgSession) snapshot(ctx context.Context, scope model.Scope) (string, []model.Change, error) {
	var (
		snap    string
		initial []model.Change
	)
	err := pgxutil.InTx(ctx, s.conn, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		Fn: func(tx pgx.Tx) error {
			// first statement of the transaction fixes the snapshot used by the enumeration below
			if err := tx.QueryRow(ctx, `SELECT pg_current_snapshot()::text`).Scan(&snap); err != nil {
				return fmt.Errorf("capture snapshot: %w", err)
			}
			query, args := enumerateQuery(scope)
			rows, err := tx.Query(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("enumerate %s: %w", scope.Table, err)
			}
			initial, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Change, error) {
				c := model.Change{Table: scope.Table}
				err := row.Scan(&c.Key, &c.New)
				return c, err
			})
			return err
		},
	})
	if err != nil {
		return "", nil, err
	}
	return snap, initial, nil
}

// enumerateQuery selects the documents of scope in key order, shaped exactly like the
// documents the change trigger writes.
func enumerateQuery(scope model.Scope) (string, []any) {
	if scope.Table == model.TableJobs {
		return `SELECT j.id, to_jsonb(j) FROM jobs j WHERE j.id = $1`, []any{scope.JobID}
	}
	if scope.MolRange == nil {
		return `SELECT r.id, result_document(r) FROM results r
			WHERE r.job_id = $1 ORDER BY r.mol_id, r.id`, []any{scope.JobID}
	}
	return `SELECT r.id, result_document(r) FROM results r
		WHERE r.job_id = $1 AND r.mol_id BETWEEN $2 AND $3
		ORDER BY r.mol_id, r.id`, []any{scope.JobID, scope.MolRange.First, scope.MolRange.Last}
}

func (s *pgSession) wait(ctx context.Context) (string, error) {
	n, err := s.conn.WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return n.Payload, nil
}

func (s *pgSession) load(ctx context.Context, seq int64, snapshot string) (record, bool, error) {
	var (
		rec   record
		table string
		snap  *string
	)
	if snapshot != "" {
		snap = &snapshot
	}
	err := s.conn.QueryRow(ctx, `
		SELECT seq, table_name, record_id, job_id, mol_id, old_doc, new_doc,
		       COALESCE(pg_visible_in_snapshot(xid, $2::text::pg_snapshot), false)
		FROM record_changes
		WHERE seq = $1
	`, seq, snap).Scan(
		&rec.change.Seq, &table, &rec.change.Key, &rec.jobID, &rec.molID,
		&rec.change.Old, &rec.change.New, &rec.seen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, fmt.Errorf("load change %d: %w", seq, err)
	}
	rec.change.Table = model.Table(table)
	return rec, true, nil
}

func (s *pgSession) close(channel string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !s.conn.IsClosed() {
		// the connection is discarded right after, so a failed UNLISTEN changes nothing
		_, _ = s.conn.Exec(ctx, "UNLISTEN "+pgx.Identifier{channel}.Sanitize())
	}
	_ = s.conn.Close(ctx)
}

func parseSeq(payload string) (int64, error) {
	seq, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("invalid change notification payload %q", payload)
	}
	return seq, nil
}
