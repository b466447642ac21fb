package ping_worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/upwatch/internal/domain/check"
	"github.com/NordCoder/upwatch/internal/domain/monitor"
	"github.com/NordCoder/upwatch/internal/domain/notification"
	"github.com/NordCoder/upwatch/internal/obs"
	"github.com/NordCoder/upwatch/internal/repository"
	"github.com/NordCoder/upwatch/internal/services/notifier"
)

var (
	mChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_checks_total", Help: "Recorded checks, by status.",
	}, []string{"status"})
	mTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_transitions_total", Help: "Monitor status transitions, by target status.",
	}, []string{"to"})
	mStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_stale_checks_total", Help: "Checks recorded but older than the monitor state.",
	})
	mPipelineErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_pipeline_errors_total", Help: "Pipelines aborted by a persistence error.",
	})
	mProbeDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "worker_probe_duration_seconds",
		Help:    "Wall time of a single probe.",
		Buckets: prometheus.DefBuckets,
	})
)

type Probe interface {
	Probe(ctx context.Context, rawURL string) check.Outcome
}

type Notifier interface {
	Dispatch(ctx context.Context, m *monitor.Monitor, res monitor.Result, c *check.Check) notifier.DispatchResult
}

// Handler runs one monitor through probe, record, transition and, when the
// transition is notify-eligible, dispatch.
type Handler struct {
	Monitors     monitor.Repo
	Prober       Probe
	Recorder     *Recorder
	Transitioner *Transitioner
	Notifier     Notifier
	Clock        notification.Clock
	Log          *zap.Logger
}

func (h *Handler) HandleCheck(ctx context.Context, monitorID int64) error {
	if monitorID <= 0 {
		return nil
	}

	ctx, span := otel.Tracer("ping-worker").Start(ctx, "worker.check",
		trace.WithAttributes(attribute.Int64("monitor.id", monitorID)),
	)
	defer span.End()

	log := obs.WithTrace(ctx, h.Log).With(
		zap.String("component", "ping-worker.handler"),
		zap.Int64("monitor_id", monitorID),
	)

	err := h.run(ctx, log, monitorID)
	if err != nil {
		mPipelineErr.Inc()
		obs.FailSpan(span, err)
	}
	return err
}

func (h *Handler) run(ctx context.Context, log *zap.Logger, monitorID int64) error {
	m, err := h.Monitors.GetByID(ctx, monitorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Debug("monitor gone; skip")
			return nil
		}
		return fmt.Errorf("get monitor: %w", err)
	}

	checkedAt := h.Clock.Now()
	start := time.Now()
	outcome := h.Prober.Probe(ctx, m.URL)
	mProbeDur.Observe(time.Since(start).Seconds())
	if ctx.Err() != nil {
		// the outcome says nothing about the target; it is checked again next run
		log.Debug("probe interrupted; not recorded", zap.Error(ctx.Err()))
		return nil
	}

	c, err := h.Recorder.Record(ctx, m.ID, outcome, checkedAt)
	if err != nil {
		return err
	}
	mChecks.WithLabelValues(string(c.Status)).Inc()

	res, updated, err := h.Transitioner.Apply(ctx, m.ID, c)
	if err != nil {
		return err
	}
	if res.Stale {
		mStale.Inc()
		log.Info("stale check not applied", zap.Int64("check_id", c.ID), zap.Time("checked_at", c.CheckedAt))
		return nil
	}
	if !res.Transitioned {
		log.Debug("check applied", zap.String("check_status", string(c.Status)), zap.String("status", string(res.To)))
		return nil
	}

	mTransitions.WithLabelValues(string(res.To)).Inc()
	log.Info("status changed",
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)),
		zap.Bool("notify", res.Notify),
		zap.Int64("check_id", c.ID),
	)

	if res.Notify && h.Notifier != nil {
		h.Notifier.Dispatch(ctx, updated, res, c)
	}
	return nil
}
