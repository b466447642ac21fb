package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/NordCoder/upwatch/internal/domain/events"
	"github.com/NordCoder/upwatch/internal/domain/outbox"
	"github.com/NordCoder/upwatch/internal/obs"
	"github.com/NordCoder/upwatch/internal/obs/retry"
)

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

// instrument wraps h with retry, a span and per-kind metrics.
func instrument(kind string, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle")
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			obs.FailSpan(span, err)
			outboxHandlerErrors.WithLabelValues(kind).Inc()
		}
		return err
	}
}

// MakeGlobalHandler routes outbox kinds to their publishers.
func MakeGlobalHandler(pub events.StatusEvents, pol retry.Policy) outbox.GlobalHandler {
	statusChanged := instrument(outbox.KindStatusChanged.String(), func(ctx context.Context, data []byte) error {
		var ev events.StatusChanged
		if err := json.Unmarshal(data, &ev); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal status-changed payload: %w", err))
		}
		return pub.PublishStatusChanged(ctx, ev)
	}, pol)

	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch kind {
		case outbox.KindStatusChanged:
			return statusChanged, nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
	}
}
