package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/upwatch/internal/domain/monitor"
)

var _ monitor.Repo = (*MonitorRepo)(nil)

type MonitorRepo struct {
	db *DB
	tx Transactor
}

func NewMonitorRepo(db *DB, tx Transactor) *MonitorRepo { return &MonitorRepo{db: db, tx: tx} }

const monitorCols = `id, user_id, name, url, interval_minutes, status, last_checked_at,
       last_status_change_at, consecutive_failures, created_at, updated_at`

const (
	qMonitorInsert = `
INSERT INTO monitors (user_id, name, url, interval_minutes)
VALUES ($1, $2, $3, $4)
RETURNING ` + monitorCols + `;`

	qMonitorByID = `
SELECT ` + monitorCols + `
FROM monitors
WHERE id = $1;`

	qMonitorLock = `
SELECT ` + monitorCols + `
FROM monitors
WHERE id = $1
FOR UPDATE;`

	qMonitorSetInterval = `
UPDATE monitors
SET interval_minutes = $2, updated_at = now()
WHERE id = $1;`

	qMonitorDelete = `DELETE FROM monitors WHERE id = $1;`

	qMonitorFetchDue = `
SELECT ` + monitorCols + `
FROM monitors
WHERE last_checked_at IS NULL
   OR last_checked_at + interval_minutes * INTERVAL '1 minute' <= $1
ORDER BY last_checked_at NULLS FIRST, id
LIMIT $2;`

	qMonitorSaveState = `
UPDATE monitors
SET status                = $2,
    last_checked_at       = $3,
    last_status_change_at = $4,
    consecutive_failures  = $5,
    updated_at            = now()
WHERE id = $1
RETURNING updated_at;`
)

func scanMonitor(row pgx.Row, m *monitor.Monitor) error {
	var status string
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Name,
		&m.URL,
		&m.IntervalMinutes,
		&status,
		&m.LastCheckedAt,
		&m.LastStatusChangeAt,
		&m.ConsecutiveFailures,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan monitor: %w", err)
	}
	m.Status = monitor.Status(status)
	return nil
}

func (r *MonitorRepo) Create(ctx context.Context, m *monitor.Monitor) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qMonitorInsert, m.UserID, m.Name, m.URL, m.IntervalMinutes)
	if err := scanMonitor(row, m); err != nil {
		return fmt.Errorf("insert monitor: %w", mapErr(err))
	}
	return nil
}

func (r *MonitorRepo) GetByID(ctx context.Context, id int64) (*monitor.Monitor, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var m monitor.Monitor
	if err := scanMonitor(r.db.execQueryer(ctx).QueryRow(ctx, qMonitorByID, id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MonitorRepo) UpdateInterval(ctx context.Context, id int64, minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("interval %d: %w", minutes, ErrConstraint)
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qMonitorSetInterval, id, minutes)
	if err != nil {
		return fmt.Errorf("update interval: %w", mapErr(err))
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MonitorRepo) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qMonitorDelete, id)
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MonitorRepo) FetchDue(ctx context.Context, now time.Time, limit int) ([]*monitor.Monitor, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qMonitorFetchDue, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due: %w", err)
	}
	defer rows.Close()

	var out []*monitor.Monitor
	for rows.Next() {
		var m monitor.Monitor
		if err := scanMonitor(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Mutate locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (r *MonitorRepo) Mutate(ctx context.Context, id int64, fn func(m *monitor.Monitor) error) (*monitor.Monitor, error) {
	var out monitor.Monitor
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		ctx, cancel := r.db.withTimeout(ctx)
		defer cancel()

		eq := r.db.execQueryer(ctx)
		if err := scanMonitor(eq.QueryRow(ctx, qMonitorLock, id), &out); err != nil {
			return err
		}
		if err := fn(&out); err != nil {
			return err
		}
		if err := eq.QueryRow(ctx, qMonitorSaveState,
			out.ID,
			string(out.Status),
			out.LastCheckedAt,
			out.LastStatusChangeAt,
			out.ConsecutiveFailures,
		).Scan(&out.UpdatedAt); err != nil {
			return fmt.Errorf("save monitor state: %w", mapErr(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
