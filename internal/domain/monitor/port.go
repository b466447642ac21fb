package monitor

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, m *Monitor) error
	GetByID(ctx context.Context, id int64) (*Monitor, error)
	UpdateInterval(ctx context.Context, id int64, minutes int) error
	Delete(ctx context.Context, id int64) error

	// FetchDue returns monitors whose next check is due at now.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*Monitor, error)

	// Mutate runs fn against the current row under a per-monitor lock and
	// persists the state fields fn left behind. A non-nil error from fn
	// discards the changes.
	Mutate(ctx context.Context, id int64, fn func(m *Monitor) error) (*Monitor, error)
}
