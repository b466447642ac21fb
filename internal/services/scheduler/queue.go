package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/upwatch/internal/domain/events"
)

var ErrQueueFull = errors.New("check queue full")

// Task is one due monitor handed to a queue backend. Token is the in-flight
// marker taken for it, zero when no marker was taken.
type Task struct {
	MonitorID int64
	URL       string
	DueAt     time.Time
	Token     uint64
}

type Enqueuer interface {
	Enqueue(ctx context.Context, t Task) error
}

// KafkaEnqueuer publishes tasks as check requests. Markers taken for these
// tasks are never released explicitly, so the InFlight paired with it needs
// a positive TTL.
type KafkaEnqueuer struct {
	Events events.CheckRequests
	Now    func() time.Time
}

func (k *KafkaEnqueuer) Enqueue(ctx context.Context, t Task) error {
	now := time.Now().UTC()
	if k.Now != nil {
		now = k.Now()
	}
	err := k.Events.PublishCheckRequested(ctx, events.CheckRequested{
		MonitorID:   t.MonitorID,
		URL:         t.URL,
		RequestedAt: now,
	})
	if err != nil {
		return fmt.Errorf("publish check request: %w", err)
	}
	return nil
}
