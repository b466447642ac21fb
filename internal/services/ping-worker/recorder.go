package ping_worker

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/upwatch/internal/domain/check"
	"github.com/NordCoder/upwatch/internal/domain/notification"
)

// Recorder turns a probe outcome into exactly one stored check.
type Recorder struct {
	Checks check.Repo
	Clock  notification.Clock
}

func (r *Recorder) Record(ctx context.Context, monitorID int64, o check.Outcome, checkedAt time.Time) (*check.Check, error) {
	cl := check.Classify(o)
	c := &check.Check{
		MonitorID:      monitorID,
		Status:         cl.Status,
		StatusCode:     cl.StatusCode,
		ResponseTimeMS: cl.ResponseTimeMS,
		ErrorMessage:   cl.ErrorMessage,
		CheckedAt:      checkedAt,
		CreatedAt:      r.Clock.Now(),
	}
	if err := r.Checks.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("record check: %w", err)
	}
	return c, nil
}
