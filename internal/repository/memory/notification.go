package memory

import (
	"context"
	"sort"

	"github.com/NordCoder/upwatch/internal/domain/notification"
	"github.com/NordCoder/upwatch/internal/repository"
)

var (
	_ notification.SettingsRepo = (*SettingsRepo)(nil)
	_ notification.DeliveryRepo = (*DeliveryRepo)(nil)
)

type SettingsRepo struct{ s *Store }

func (r *SettingsRepo) GetByUser(ctx context.Context, userID int64) (*notification.Settings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.settings[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *SettingsRepo) Upsert(ctx context.Context, st *notification.Settings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *st
	r.s.settings[st.UserID] = &cp
	return nil
}

type DeliveryRepo struct{ s *Store }

func (r *DeliveryRepo) Create(ctx context.Context, d *notification.Delivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.ID = r.s.id()
	if d.SentAt.IsZero() {
		d.SentAt = r.s.now()
	}
	cp := *d
	r.s.deliveries = append(r.s.deliveries, &cp)
	return nil
}

func (r *DeliveryRepo) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*notification.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	r.s.mu.RLock()
	var out []*notification.Delivery
	for _, d := range r.s.deliveries {
		if d.MonitorID == monitorID {
			cp := *d
			out = append(out, &cp)
		}
	}
	r.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
