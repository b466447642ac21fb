package notification

import "context"

type SettingsRepo interface {
	// GetByUser returns ErrNotFound from the storage package when no
	// record exists.
	GetByUser(ctx context.Context, userID int64) (*Settings, error)
	Upsert(ctx context.Context, s *Settings) error
}

type DeliveryRepo interface {
	Create(ctx context.Context, d *Delivery) error
	ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*Delivery, error)
}
