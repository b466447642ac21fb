package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/upwatch/internal/domain/monitor"
)

type DueSource interface {
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*monitor.Monitor, error)
}

type TickStats struct {
	Fetched  int
	Enqueued int
	Skipped  int
	Dropped  int
	Errors   int
}

// Usecase selects due monitors and hands each one to the queue. It never
// waits for checks to finish.
type Usecase struct {
	Monitors DueSource
	Queue    Enqueuer
	InFlight *InFlight
	Limit    int
	Log      *zap.Logger
}

func (u *Usecase) Tick(ctx context.Context, now time.Time) (TickStats, error) {
	var st TickStats
	limit := u.Limit
	if limit <= 0 {
		limit = 100
	}

	tr := otel.Tracer("scheduler.uc")
	ctx, span := tr.Start(ctx, "scheduler.tick",
		trace.WithAttributes(attribute.Int("batch.limit", limit)),
	)
	defer span.End()

	// Monitors already in flight stay due until their check lands, so fetch
	// past them to keep the batch full of monitors that can be scheduled.
	fetch := limit
	if u.InFlight != nil {
		fetch += u.InFlight.Len()
	}
	due, err := u.Monitors.FetchDue(ctx, now, fetch)
	if err != nil {
		span.RecordError(err)
		return st, fmt.Errorf("fetch due: %w", err)
	}
	st.Fetched = len(due)
	span.SetAttributes(attribute.Int("batch.fetched", len(due)))

	for _, m := range due {
		if st.Enqueued+st.Dropped+st.Errors >= limit {
			break
		}
		t := Task{MonitorID: m.ID, URL: m.URL, DueAt: m.NextDueAt()}
		if u.InFlight != nil {
			tok, ok := u.InFlight.Acquire(m.ID, now)
			if !ok {
				st.Skipped++
				continue
			}
			t.Token = tok
		}
		err := u.Queue.Enqueue(ctx, t)
		if err == nil {
			st.Enqueued++
			continue
		}
		if u.InFlight != nil {
			u.InFlight.Release(m.ID, t.Token)
		}
		if errors.Is(err, ErrQueueFull) {
			st.Dropped++
			u.Log.Warn("queue full; task dropped until next tick", zap.Int64("monitor_id", m.ID))
			continue
		}
		st.Errors++
		span.RecordError(err)
		u.Log.Warn("enqueue failed", zap.Int64("monitor_id", m.ID), zap.Error(err))
	}

	span.SetAttributes(
		attribute.Int("batch.enqueued", st.Enqueued),
		attribute.Int("batch.skipped", st.Skipped),
		attribute.Int("batch.dropped", st.Dropped),
		attribute.Int("batch.errors", st.Errors),
	)
	return st, nil
}
