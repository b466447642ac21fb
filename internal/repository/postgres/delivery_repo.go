package postgres

import (
	"context"
	"fmt"

	"github.com/NordCoder/upwatch/internal/domain/notification"
)

var _ notification.DeliveryRepo = (*DeliveryRepo)(nil)

type DeliveryRepo struct{ db *DB }

func NewDeliveryRepo(db *DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

const (
	qDeliveryInsert = `
INSERT INTO notification_deliveries (monitor_id, user_id, channel, direction, ok, error, sent_at, payload)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), COALESCE($7, now()), $8)
RETURNING id, sent_at;`

	qDeliveryByMonitor = `
SELECT id, monitor_id, user_id, channel, direction, ok, COALESCE(error, ''), sent_at, payload
FROM notification_deliveries
WHERE monitor_id = $1
ORDER BY sent_at DESC, id DESC
LIMIT $2;`
)

func (r *DeliveryRepo) Create(ctx context.Context, d *notification.Delivery) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.execQueryer(ctx).QueryRow(ctx, qDeliveryInsert,
		d.MonitorID,
		d.UserID,
		string(d.Channel),
		string(d.Direction),
		d.OK,
		d.Error,
		nullTime(d.SentAt),
		d.Payload,
	).Scan(&d.ID, &d.SentAt); err != nil {
		return fmt.Errorf("insert delivery: %w", mapErr(err))
	}
	return nil
}

func (r *DeliveryRepo) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*notification.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qDeliveryByMonitor, monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Delivery, 0, limit)
	for rows.Next() {
		var (
			d                  notification.Delivery
			channel, direction string
		)
		if err := rows.Scan(&d.ID, &d.MonitorID, &d.UserID, &channel, &direction, &d.OK, &d.Error, &d.SentAt, &d.Payload); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Channel = notification.Channel(channel)
		d.Direction = notification.Direction(direction)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
