package check

import "time"

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Check is one immutable probe result.
type Check struct {
	ID             int64     `json:"id"`
	MonitorID      int64     `json:"monitor_id"`
	Status         Status    `json:"status"`
	StatusCode     *int      `json:"status_code"`
	ResponseTimeMS *int64    `json:"response_time_ms"`
	ErrorMessage   *string   `json:"error_message"`
	CheckedAt      time.Time `json:"checked_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (c *Check) Succeeded() bool { return c.Status == StatusSuccess }

// Outcome is the result of a single probe: either Responded or Unreachable.
type Outcome interface {
	isOutcome()
}

// Responded is any completed HTTP exchange, whatever the status code.
type Responded struct {
	StatusCode int
	ElapsedMS  int64
}

// Unreachable covers DNS, connect, TLS and timeout failures.
type Unreachable struct {
	Reason string
}

func (Responded) isOutcome()   {}
func (Unreachable) isOutcome() {}
