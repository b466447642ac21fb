package check

import (
	"context"
	"time"
)

type Repo interface {
	Insert(ctx context.Context, c *Check) error
	ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*Check, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
