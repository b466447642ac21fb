package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NordCoder/upwatch/internal/domain/check"
	"github.com/NordCoder/upwatch/internal/repository"
)

var _ check.Repo = (*CheckRepo)(nil)

type CheckRepo struct{ s *Store }

func (r *CheckRepo) Insert(ctx context.Context, c *check.Check) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.monitors[c.MonitorID]; !ok {
		return fmt.Errorf("monitor %d: %w", c.MonitorID, repository.ErrConstraint)
	}
	c.ID = r.s.id()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	cp := *c
	r.s.checks = append(r.s.checks, &cp)
	return nil
}

func (r *CheckRepo) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*check.Check, error) {
	if limit <= 0 {
		limit = 50
	}
	r.s.mu.RLock()
	var out []*check.Check
	for _, c := range r.s.checks {
		if c.MonitorID == monitorID {
			cp := *c
			out = append(out, &cp)
		}
	}
	r.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CheckedAt.After(out[j].CheckedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *CheckRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	kept := r.s.checks[:0]
	for _, c := range r.s.checks {
		if c.CheckedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	r.s.checks = kept
	return n, nil
}
