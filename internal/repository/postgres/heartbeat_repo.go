package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/upwatch/internal/domain/heartbeat"
)

var _ heartbeat.Store = (*HeartbeatRepo)(nil)

type HeartbeatRepo struct{ db *DB }

func NewHeartbeatRepo(db *DB) *HeartbeatRepo { return &HeartbeatRepo{db: db} }

const (
	qHeartbeatUpsert = `
INSERT INTO heartbeats (name, beat_at)
VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET beat_at = EXCLUDED.beat_at;`

	qHeartbeatGet = `SELECT name, beat_at FROM heartbeats WHERE name = $1;`
)

func (r *HeartbeatRepo) Write(ctx context.Context, name string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qHeartbeatUpsert, name, at); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}

func (r *HeartbeatRepo) Read(ctx context.Context, name string) (*heartbeat.Heartbeat, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var hb heartbeat.Heartbeat
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qHeartbeatGet, name).Scan(&hb.Name, &hb.BeatAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read heartbeat: %w", err)
	}
	return &hb, nil
}
