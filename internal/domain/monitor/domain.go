package monitor

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

type Monitor struct {
	ID                  int64      `json:"id"`
	UserID              int64      `json:"user_id"`
	Name                string     `json:"name"`
	URL                 string     `json:"url"`
	IntervalMinutes     int        `json:"interval_minutes"`
	Status              Status     `json:"status"`
	LastCheckedAt       *time.Time `json:"last_checked_at"`
	LastStatusChangeAt  *time.Time `json:"last_status_change_at"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.IntervalMinutes) * time.Minute
}

// NextDueAt returns zero time for a monitor that has never been checked.
func (m *Monitor) NextDueAt() time.Time {
	if m.LastCheckedAt == nil {
		return time.Time{}
	}
	return m.LastCheckedAt.Add(m.Interval())
}

// IsDue holds when the monitor was never checked or its interval has
// fully elapsed since the last check. The boundary is inclusive.
func (m *Monitor) IsDue(now time.Time) bool {
	if m.LastCheckedAt == nil {
		return true
	}
	return !m.NextDueAt().After(now)
}

func (m *Monitor) Clone() *Monitor {
	if m == nil {
		return nil
	}
	c := *m
	if m.LastCheckedAt != nil {
		t := *m.LastCheckedAt
		c.LastCheckedAt = &t
	}
	if m.LastStatusChangeAt != nil {
		t := *m.LastStatusChangeAt
		c.LastStatusChangeAt = &t
	}
	return &c
}
