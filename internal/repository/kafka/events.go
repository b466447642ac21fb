package kafka

import (
	"context"

	"github.com/NordCoder/upwatch/internal/domain/events"
)

var (
	_ events.CheckRequests = (*CheckRequestsKafka)(nil)
	_ events.StatusEvents  = (*StatusEventsKafka)(nil)
)

// CheckRequestsKafka keys by monitor id so one monitor stays on one partition.
type CheckRequestsKafka struct {
	p *Producer
}

func NewCheckRequestsKafka(p *Producer) *CheckRequestsKafka { return &CheckRequestsKafka{p: p} }

func (e *CheckRequestsKafka) PublishCheckRequested(ctx context.Context, ev events.CheckRequested) error {
	return e.p.PublishJSON(ctx, KeyFromInt64(ev.MonitorID), ev)
}

type StatusEventsKafka struct {
	p *Producer
}

func NewStatusEventsKafka(p *Producer) *StatusEventsKafka { return &StatusEventsKafka{p: p} }

func (e *StatusEventsKafka) PublishStatusChanged(ctx context.Context, ev events.StatusChanged) error {
	return e.p.PublishJSON(ctx, KeyFromInt64(ev.MonitorID), ev)
}
