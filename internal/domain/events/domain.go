package events

import (
	"context"
	"time"
)

// CheckRequested asks a worker to run one monitor's pipeline.
type CheckRequested struct {
	MonitorID   int64     `json:"monitor_id"`
	URL         string    `json:"url"`
	RequestedAt time.Time `json:"requested_at"`
}

// StatusChanged is emitted on every transition, notify-eligible or not.
type StatusChanged struct {
	MonitorID int64     `json:"monitor_id"`
	UserID    int64     `json:"user_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Notify    bool      `json:"notify"`
	CheckID   int64     `json:"check_id"`
	ChangedAt time.Time `json:"changed_at"`
}

type CheckRequests interface {
	PublishCheckRequested(ctx context.Context, ev CheckRequested) error
}

type StatusEvents interface {
	PublishStatusChanged(ctx context.Context, ev StatusChanged) error
}
