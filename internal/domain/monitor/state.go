package monitor

import (
	"time"

	"github.com/NordCoder/upwatch/internal/domain/check"
)

// Policy tunes the state machine. The zero value behaves like DefaultPolicy.
type Policy struct {
	// FailureThreshold is the number of consecutive failed checks an up
	// monitor needs before it goes down.
	FailureThreshold int
}

func DefaultPolicy() Policy { return Policy{FailureThreshold: 1} }

func (p Policy) threshold() int {
	if p.FailureThreshold < 1 {
		return 1
	}
	return p.FailureThreshold
}

type Result struct {
	From         Status
	To           Status
	Transitioned bool
	Notify       bool
	// Stale marks a check older than the monitor's last applied check.
	Stale bool
	// DownSince is the start of the down period being left, if tracked.
	DownSince *time.Time
}

// Apply folds one check into the monitor and reports what happened.
// The monitor is changed in place.
func Apply(m *Monitor, c *check.Check, p Policy) Result {
	res := Result{From: m.Status, To: m.Status}

	if m.LastCheckedAt != nil && c.CheckedAt.Before(*m.LastCheckedAt) {
		res.Stale = true
		return res
	}

	at := c.CheckedAt
	m.LastCheckedAt = &at

	if c.Succeeded() {
		m.ConsecutiveFailures = 0
	} else {
		m.ConsecutiveFailures++
	}

	next, notify := nextStatus(m, c.Succeeded(), p)
	if next == m.Status {
		return res
	}

	if m.Status == StatusDown && m.LastStatusChangeAt != nil {
		since := *m.LastStatusChangeAt
		res.DownSince = &since
	}

	m.Status = next
	m.LastStatusChangeAt = &at

	res.To = next
	res.Transitioned = true
	res.Notify = notify
	return res
}

func nextStatus(m *Monitor, ok bool, p Policy) (Status, bool) {
	switch m.Status {
	case StatusUp:
		if !ok && m.ConsecutiveFailures >= p.threshold() {
			return StatusDown, true
		}
		return StatusUp, false
	case StatusDown:
		if ok {
			return StatusUp, true
		}
		return StatusDown, false
	default:
		// first completed check: silent when healthy, alert when not
		if ok {
			return StatusUp, false
		}
		return StatusDown, true
	}
}
