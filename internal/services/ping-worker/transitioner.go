package ping_worker

import (
	"context"
	"fmt"

	"github.com/NordCoder/upwatch/internal/domain/check"
	"github.com/NordCoder/upwatch/internal/domain/events"
	"github.com/NordCoder/upwatch/internal/domain/monitor"
	"github.com/NordCoder/upwatch/internal/domain/outbox"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Transitioner applies one check to its monitor under the monitor's lock.
// With Outbox set, every transition also enqueues a status_changed event
// in the same transaction.
type Transitioner struct {
	Monitors monitor.Repo
	Tx       Transactor
	Outbox   outbox.Repository
	Policy   monitor.Policy
}

func (t *Transitioner) Apply(ctx context.Context, monitorID int64, c *check.Check) (monitor.Result, *monitor.Monitor, error) {
	var (
		res     monitor.Result
		updated *monitor.Monitor
	)
	err := t.Tx.WithTx(ctx, func(ctx context.Context) error {
		m, err := t.Monitors.Mutate(ctx, monitorID, func(m *monitor.Monitor) error {
			res = monitor.Apply(m, c, t.Policy)
			return nil
		})
		if err != nil {
			return err
		}
		updated = m

		if res.Transitioned && t.Outbox != nil {
			if err := t.enqueue(ctx, m, res, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return monitor.Result{}, nil, fmt.Errorf("apply transition: %w", err)
	}
	return res, updated, nil
}

func (t *Transitioner) enqueue(ctx context.Context, m *monitor.Monitor, res monitor.Result, c *check.Check) error {
	msg, err := outbox.NewMessage(ctx, fmt.Sprintf("status:%d:%d", m.ID, c.ID), outbox.KindStatusChanged, events.StatusChanged{
		MonitorID: m.ID,
		UserID:    m.UserID,
		From:      string(res.From),
		To:        string(res.To),
		Notify:    res.Notify,
		CheckID:   c.ID,
		ChangedAt: c.CheckedAt,
	})
	if err != nil {
		return err
	}
	if err := t.Outbox.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("outbox enqueue: %w", err)
	}
	return nil
}
