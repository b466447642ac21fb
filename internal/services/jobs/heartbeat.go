package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/upwatch/internal/domain/heartbeat"
	"github.com/NordCoder/upwatch/internal/domain/notification"
	"github.com/NordCoder/upwatch/internal/obs"
	"github.com/NordCoder/upwatch/internal/repository"
)

var ErrStaleHeartbeat = errors.New("heartbeat stale")

type HeartbeatRecorder struct {
	Store heartbeat.Store
	Name  string
	Clock notification.Clock
	Log   *zap.Logger
}

// Beat records the current time under r.Name. Failures are logged and
// returned; callers treat them as non-fatal.
func (r *HeartbeatRecorder) Beat(ctx context.Context) error {
	name := r.Name
	if name == "" {
		name = heartbeat.SchedulerName
	}
	if err := r.Store.Write(ctx, name, r.Clock.Now()); err != nil {
		r.Log.Warn("heartbeat write failed", zap.String("name", name), zap.Error(err))
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}

// HeartbeatHealth fails when the named heartbeat is missing or older than
// maxAge.
func HeartbeatHealth(store heartbeat.Store, name string, maxAge time.Duration, clock notification.Clock) obs.HealthFunc {
	return func(ctx context.Context) error {
		hb, err := store.Read(ctx, name)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: no %s heartbeat yet", ErrStaleHeartbeat, name)
			}
			return fmt.Errorf("read heartbeat: %w", err)
		}
		if age := clock.Now().Sub(hb.BeatAt); age > maxAge {
			return fmt.Errorf("%w: %s last beat %s ago", ErrStaleHeartbeat, name, age.Round(time.Second))
		}
		return nil
	}
}
