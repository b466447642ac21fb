package scheduler

import (
	"sync"
	"time"
)

// InFlight tracks monitors whose check has been handed off but not yet
// finished. Every Acquire issues a fresh token and only the holder of the
// current token can release the marker.
//
// With a positive ttl markers also lapse on their own, which the kafka
// backend needs because the consumer never reports back. With ttl <= 0 a
// marker lives until its holder releases it.
type InFlight struct {
	mu  sync.Mutex
	ttl time.Duration
	seq uint64
	m   map[int64]marker
}

type marker struct {
	token uint64
	until time.Time
}

func (mk marker) live(now time.Time) bool {
	return mk.until.IsZero() || now.Before(mk.until)
}

func NewInFlight(ttl time.Duration) *InFlight {
	return &InFlight{ttl: max(ttl, 0), m: make(map[int64]marker)}
}

// Acquire marks id as in flight and returns the marker's token. It reports
// false when a live marker exists. Tokens are never zero.
func (f *InFlight) Acquire(id int64, now time.Time) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mk, ok := f.m[id]; ok && mk.live(now) {
		return 0, false
	}
	f.seq++
	mk := marker{token: f.seq}
	if f.ttl > 0 {
		mk.until = now.Add(f.ttl)
	}
	f.m[id] = mk
	return mk.token, true
}

// Release drops the marker of id if token still owns it. A stale token, left
// by a task whose marker lapsed and was taken again, is ignored.
func (f *InFlight) Release(id int64, token uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mk, ok := f.m[id]; ok && mk.token == token {
		delete(f.m, id)
	}
}

// Len returns the number of markers held, expired ones included until Sweep.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m)
}

// Sweep drops expired markers and returns how many remain.
func (f *InFlight) Sweep(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, mk := range f.m {
		if !mk.live(now) {
			delete(f.m, id)
		}
	}
	return len(f.m)
}
