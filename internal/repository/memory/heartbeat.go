package memory

import (
	"context"
	"time"

	"github.com/NordCoder/upwatch/internal/domain/heartbeat"
	"github.com/NordCoder/upwatch/internal/repository"
)

var _ heartbeat.Store = (*HeartbeatRepo)(nil)

type HeartbeatRepo struct{ s *Store }

func (r *HeartbeatRepo) Write(ctx context.Context, name string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.beats[name] = heartbeat.Heartbeat{Name: name, BeatAt: at}
	return nil
}

func (r *HeartbeatRepo) Read(ctx context.Context, name string) (*heartbeat.Heartbeat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	hb, ok := r.s.beats[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &hb, nil
}
