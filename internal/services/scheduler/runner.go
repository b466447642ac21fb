package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/upwatch/internal/domain/notification"
)

var (
	mFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_monitors_fetched_total", Help: "Due monitors fetched",
	})
	mEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_tasks_enqueued_total", Help: "Check tasks handed to the queue",
	})
	mDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_tasks_dropped_total", Help: "Check tasks dropped on a full queue",
	})
	mSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_tasks_skipped_total", Help: "Due monitors skipped because a check is in flight",
	})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_errors_total", Help: "Errors in scheduler loop",
	})
	mLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "scheduler_loop_duration_seconds", Help: "Scheduler tick duration",
		Buckets: prometheus.DefBuckets,
	})
)

type Runner struct {
	Log      *zap.Logger
	UC       *Usecase
	Tick     time.Duration
	Clock    notification.Clock
	InFlight *InFlight
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			mErr.Inc()
			r.Log.Error("tick panic", zap.Any("panic", p))
		}
		mLoopDur.Observe(time.Since(start).Seconds())
	}()

	now := r.Clock.Now()
	if r.InFlight != nil {
		r.InFlight.Sweep(now)
	}

	st, err := r.UC.Tick(ctx, now)
	if err != nil {
		mErr.Inc()
		r.Log.Warn("tick error", zap.Error(err))
	}
	mFetched.Add(float64(st.Fetched))
	mEnqueued.Add(float64(st.Enqueued))
	mDropped.Add(float64(st.Dropped))
	mSkipped.Add(float64(st.Skipped))
	if st.Errors > 0 {
		mErr.Add(float64(st.Errors))
	}
	if st.Fetched > 0 {
		r.Log.Debug("scheduled batch",
			zap.Int("fetched", st.Fetched),
			zap.Int("enqueued", st.Enqueued),
			zap.Int("skipped", st.Skipped),
			zap.Int("dropped", st.Dropped),
			zap.Int("errors", st.Errors),
		)
	}
}

// Run ticks immediately and then every r.Tick until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r.Tick <= 0 {
		return fmt.Errorf("scheduler tick must be > 0, got %s", r.Tick)
	}
	ticker := time.NewTicker(r.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
