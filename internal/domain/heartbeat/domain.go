package heartbeat

import (
	"context"
	"time"
)

const SchedulerName = "scheduler"

type Heartbeat struct {
	Name   string    `json:"name"`
	BeatAt time.Time `json:"beat_at"`
}

type Store interface {
	Write(ctx context.Context, name string, at time.Time) error
	Read(ctx context.Context, name string) (*Heartbeat, error)
}
