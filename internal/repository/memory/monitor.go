package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NordCoder/upwatch/internal/domain/monitor"
	"github.com/NordCoder/upwatch/internal/repository"
)

var _ monitor.Repo = (*MonitorRepo)(nil)

type MonitorRepo struct{ s *Store }

func (r *MonitorRepo) Create(ctx context.Context, m *monitor.Monitor) error {
	if m.IntervalMinutes < 1 {
		return fmt.Errorf("interval %d: %w", m.IntervalMinutes, repository.ErrConstraint)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[m.UserID]; !ok {
		return fmt.Errorf("owner %d: %w", m.UserID, repository.ErrConstraint)
	}
	now := r.s.now()
	m.ID = r.s.id()
	m.Status = monitor.StatusPending
	m.LastCheckedAt = nil
	m.LastStatusChangeAt = nil
	m.ConsecutiveFailures = 0
	m.CreatedAt = now
	m.UpdatedAt = now
	r.s.monitors[m.ID] = m.Clone()
	return nil
}

func (r *MonitorRepo) GetByID(ctx context.Context, id int64) (*monitor.Monitor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.monitors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.Clone(), nil
}

func (r *MonitorRepo) UpdateInterval(ctx context.Context, id int64, minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("interval %d: %w", minutes, repository.ErrConstraint)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.monitors[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IntervalMinutes = minutes
	m.UpdatedAt = r.s.now()
	return nil
}

// Delete cascades to the monitor's checks and deliveries.
func (r *MonitorRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.monitors[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.monitors, id)

	kept := r.s.checks[:0]
	for _, c := range r.s.checks {
		if c.MonitorID != id {
			kept = append(kept, c)
		}
	}
	r.s.checks = kept

	keptD := r.s.deliveries[:0]
	for _, d := range r.s.deliveries {
		if d.MonitorID != id {
			keptD = append(keptD, d)
		}
	}
	r.s.deliveries = keptD
	return nil
}

func (r *MonitorRepo) FetchDue(ctx context.Context, now time.Time, limit int) ([]*monitor.Monitor, error) {
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.RLock()
	out := make([]*monitor.Monitor, 0, len(r.s.monitors))
	for _, m := range r.s.monitors {
		if m.IsDue(now) {
			out = append(out, m.Clone())
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].NextDueAt(), out[j].NextDueAt()
		if a.Equal(b) {
			return out[i].ID < out[j].ID
		}
		return a.Before(b)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MonitorRepo) Mutate(ctx context.Context, id int64, fn func(m *monitor.Monitor) error) (*monitor.Monitor, error) {
	l := r.s.monitorLock(id)
	l.Lock()
	defer l.Unlock()

	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(cur); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.monitors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.Status = cur.Status
	m.LastCheckedAt = cur.Clone().LastCheckedAt
	m.LastStatusChangeAt = cur.Clone().LastStatusChangeAt
	m.ConsecutiveFailures = cur.ConsecutiveFailures
	m.UpdatedAt = r.s.now()
	return m.Clone(), nil
}
