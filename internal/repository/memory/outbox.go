package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/NordCoder/upwatch/internal/domain/outbox"
)

var _ outbox.Repository = (*OutboxRepo)(nil)

type OutboxRepo struct {
	mu   sync.Mutex
	msgs map[string]*outbox.Message
	now  func() time.Time
}

func newOutboxRepo(now func() time.Time) *OutboxRepo {
	return &OutboxRepo{msgs: make(map[string]*outbox.Message), now: now}
}

func (r *OutboxRepo) Enqueue(ctx context.Context, m outbox.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.msgs[m.IdempotencyKey]; ok {
		return nil
	}
	now := r.now()
	m.Status = outbox.StatusCreated
	m.CreatedAt = now
	m.UpdatedAt = now
	r.msgs[m.IdempotencyKey] = &m
	return nil
}

func (r *OutboxRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	if batch <= 0 {
		return nil, errors.New("batch must be > 0")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var cand []*outbox.Message
	for _, m := range r.msgs {
		switch {
		case m.Status == outbox.StatusCreated:
			cand = append(cand, m)
		case m.Status == outbox.StatusInProgress && m.UpdatedAt.Before(now.Add(-inProgressTTL)):
			cand = append(cand, m)
		}
	}
	sort.Slice(cand, func(i, j int) bool { return cand[i].CreatedAt.Before(cand[j].CreatedAt) })
	if len(cand) > batch {
		cand = cand[:batch]
	}

	out := make([]outbox.Message, 0, len(cand))
	for _, m := range cand {
		m.Status = outbox.StatusInProgress
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (r *OutboxRepo) MarkSuccess(ctx context.Context, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, k := range keys {
		if m, ok := r.msgs[k]; ok {
			m.Status = outbox.StatusSuccess
			m.UpdatedAt = now
		}
	}
	return nil
}
