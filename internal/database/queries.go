package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"dedupe-go/internal/dedup"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// queries holds every statement the audit log runs.
type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries {
	return &queries{db: db}
}

func (q *queries) withTx(tx *sql.Tx) *queries {
	return &queries{db: tx}
}

const runColumns = `id, operation, parameters, status, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (dedup.Run, error) {
	var r dedup.Run
	err := row.Scan(&r.ID, &r.Operation, &r.Parameters, &r.Status, &r.StartedAt, &r.FinishedAt)
	return r, err
}

const insertRun = `
INSERT INTO runs (operation, parameters, status, started_at)
VALUES (?, ?, ?, ?)`

func (q *queries) insertRun(ctx context.Context, operation, parameters string, startedAt time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertRun, operation, parameters, dedup.RunStatusRunning, startedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getRun = `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

func (q *queries) getRun(ctx context.Context, id int64) (dedup.Run, error) {
	return scanRun(q.db.QueryRowContext(ctx, getRun, id))
}

const finishRun = `UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`

func (q *queries) finishRun(ctx context.Context, id int64, status string, finishedAt time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, finishRun, status, finishedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listRuns = `SELECT ` + runColumns + ` FROM runs ORDER BY id DESC LIMIT ?`

func (q *queries) listRuns(ctx context.Context, limit int) ([]dedup.Run, error) {
	rows, err := q.db.QueryContext(ctx, listRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dedup.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const maxRunID = `SELECT COALESCE(MAX(id), 0) FROM runs`

func (q *queries) maxRunID(ctx context.Context) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, maxRunID).Scan(&id)
	return id, err
}

const decisionColumns = `id, run_id, decision_id, decided_at, mode, source_path, keeper_path, size, fingerprint, outcome, reason`

func scanDecision(row interface{ Scan(...any) error }) (dedup.DeletionDecision, error) {
	var d dedup.DeletionDecision
	err := row.Scan(&d.ID, &d.RunID, &d.DecisionID, &d.Timestamp, &d.Mode, &d.SourcePath,
		&d.KeeperPath, &d.Size, &d.Fingerprint, &d.Outcome, &d.Reason)
	return d, err
}

const insertDecision = `
INSERT INTO decisions (run_id, decision_id, decided_at, mode, source_path, keeper_path, size, fingerprint, outcome, reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *queries) insertDecision(ctx context.Context, d *dedup.DeletionDecision) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertDecision, d.RunID, d.DecisionID, d.Timestamp.UTC(), string(d.Mode),
		d.SourcePath, d.KeeperPath, d.Size, d.Fingerprint, string(d.Outcome), d.Reason)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const latestDecision = `
SELECT ` + decisionColumns + ` FROM decisions
WHERE source_path = ? AND (? = '' OR mode = ?)
ORDER BY id DESC LIMIT 1`

func (q *queries) latestDecision(ctx context.Context, sourcePath string, mode dedup.Mode) (dedup.DeletionDecision, error) {
	return scanDecision(q.db.QueryRowContext(ctx, latestDecision, sourcePath, string(mode), string(mode)))
}

const countDeleted = `SELECT COUNT(*) FROM decisions WHERE source_path = ? AND outcome = 'deleted'`

func (q *queries) countDeleted(ctx context.Context, sourcePath string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countDeleted, sourcePath).Scan(&n)
	return n, err
}

// decisionWhere renders the WHERE clause for a filter.
func decisionWhere(f dedup.DecisionFilter) (string, []any) {
	var conds []string
	var args []any
	if f.RunID != 0 {
		conds = append(conds, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Mode != "" {
		conds = append(conds, "mode = ?")
		args = append(args, string(f.Mode))
	}
	if f.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (q *queries) listDecisions(ctx context.Context, f dedup.DecisionFilter) ([]dedup.DeletionDecision, error) {
	where, args := decisionWhere(f)
	query := `SELECT ` + decisionColumns + ` FROM decisions` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dedup.DeletionDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type outcomeRow struct {
	outcome dedup.Outcome
	count   int
	bytes   int64
}

func (q *queries) summarize(ctx context.Context, f dedup.DecisionFilter) ([]outcomeRow, error) {
	where, args := decisionWhere(f)
	query := `SELECT outcome, COUNT(*), COALESCE(SUM(size), 0) FROM decisions` + where + ` GROUP BY outcome`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outcomeRow
	for rows.Next() {
		var r outcomeRow
		if err := rows.Scan(&r.outcome, &r.count, &r.bytes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const intentColumns = `run_id, decision_id, source_path, keeper_path, size, fingerprint, created_at`

const insertIntent = `
INSERT INTO deletion_intents (` + intentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *queries) insertIntent(ctx context.Context, in *dedup.DeletionIntent) error {
	_, err := q.db.ExecContext(ctx, insertIntent, in.RunID, in.DecisionID, in.SourcePath, in.KeeperPath,
		in.Size, in.Fingerprint, in.CreatedAt.UTC())
	return err
}

const deleteIntent = `DELETE FROM deletion_intents WHERE source_path = ?`

func (q *queries) deleteIntent(ctx context.Context, sourcePath string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteIntent, sourcePath)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteIntentForDecision = `DELETE FROM deletion_intents WHERE source_path = ? AND decision_id = ?`

func (q *queries) deleteIntentForDecision(ctx context.Context, sourcePath, decisionID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteIntentForDecision, sourcePath, decisionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listIntents = `SELECT ` + intentColumns + ` FROM deletion_intents ORDER BY created_at, source_path`

func (q *queries) listIntents(ctx context.Context) ([]dedup.DeletionIntent, error) {
	rows, err := q.db.QueryContext(ctx, listIntents)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dedup.DeletionIntent
	for rows.Next() {
		var in dedup.DeletionIntent
		if err := rows.Scan(&in.RunID, &in.DecisionID, &in.SourcePath, &in.KeeperPath,
			&in.Size, &in.Fingerprint, &in.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
