package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/upwatch/internal/domain/check"
)

var _ check.Repo = (*CheckRepo)(nil)

// CheckRepo has no update path: check rows are written once.
type CheckRepo struct {
	db *DB
}

func NewCheckRepo(db *DB) *CheckRepo { return &CheckRepo{db: db} }

const (
	qCheckInsert = `
INSERT INTO checks (monitor_id, status, status_code, response_time_ms, error_message, checked_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
RETURNING id, created_at;`

	qCheckByMonitor = `
SELECT id, monitor_id, status, status_code, response_time_ms, error_message, checked_at, created_at
FROM checks
WHERE monitor_id = $1
ORDER BY checked_at DESC, id DESC
LIMIT $2;`

	qCheckPrune = `DELETE FROM checks WHERE checked_at < $1;`
)

func (r *CheckRepo) Insert(ctx context.Context, c *check.Check) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.execQueryer(ctx).QueryRow(ctx, qCheckInsert,
		c.MonitorID,
		string(c.Status),
		c.StatusCode,
		c.ResponseTimeMS,
		c.ErrorMessage,
		c.CheckedAt,
		nullTime(c.CreatedAt),
	).Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("insert check: %w", mapErr(err))
	}
	return nil
}

func (r *CheckRepo) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*check.Check, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qCheckByMonitor, monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	out := make([]*check.Check, 0, limit)
	for rows.Next() {
		var (
			c      check.Check
			status string
		)
		if err := rows.Scan(&c.ID, &c.MonitorID, &status, &c.StatusCode, &c.ResponseTimeMS,
			&c.ErrorMessage, &c.CheckedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		c.Status = check.Status(status)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *CheckRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qCheckPrune, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune checks: %w", err)
	}
	return cmd.RowsAffected(), nil
}
