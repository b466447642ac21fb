package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// NewMessage encodes v as the message data and stamps the trace found in ctx.
func NewMessage(ctx context.Context, key string, kind Kind, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	m := Message{IdempotencyKey: key, Kind: kind, Data: data}
	m.StampTrace(ctx)
	return m, nil
}

// StampTrace stores the propagation headers of ctx on m.
func (m *Message) StampTrace(ctx context.Context) {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	m.Traceparent = c.Get("traceparent")
	m.Tracestate = c.Get("tracestate")
	m.Baggage = c.Get("baggage")
}

// TraceContext returns ctx parented on the trace stored with m.
func (m Message) TraceContext(ctx context.Context) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		"traceparent": m.Traceparent,
		"tracestate":  m.Tracestate,
		"baggage":     m.Baggage,
	})
}
