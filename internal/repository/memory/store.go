// Package memory is an in-process storage driver for local runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/upwatch/internal/domain/check"
	"github.com/NordCoder/upwatch/internal/domain/heartbeat"
	"github.com/NordCoder/upwatch/internal/domain/monitor"
	"github.com/NordCoder/upwatch/internal/domain/notification"
	"github.com/NordCoder/upwatch/internal/domain/user"
)

// Store keeps every table in maps guarded by one RWMutex. Per-monitor
// locks serialize Mutate without blocking readers of other monitors.
type Store struct {
	mu sync.RWMutex

	monitors   map[int64]*monitor.Monitor
	checks     []*check.Check
	users      map[int64]*user.User
	settings   map[int64]*notification.Settings
	deliveries []*notification.Delivery
	beats      map[string]heartbeat.Heartbeat

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	nextID int64
	now    func() time.Time

	Monitors   *MonitorRepo
	Checks     *CheckRepo
	Users      *UserRepo
	Settings   *SettingsRepo
	Deliveries *DeliveryRepo
	Heartbeats *HeartbeatRepo
	Outbox     *OutboxRepo
}

func New() *Store {
	s := &Store{
		monitors: make(map[int64]*monitor.Monitor),
		checks:   make([]*check.Check, 0, 128),
		users:    make(map[int64]*user.User),
		settings: make(map[int64]*notification.Settings),
		beats:    make(map[string]heartbeat.Heartbeat),
		locks:    make(map[int64]*sync.Mutex),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.Monitors = &MonitorRepo{s: s}
	s.Checks = &CheckRepo{s: s}
	s.Users = &UserRepo{s: s}
	s.Settings = &SettingsRepo{s: s}
	s.Deliveries = &DeliveryRepo{s: s}
	s.Heartbeats = &HeartbeatRepo{s: s}
	s.Outbox = newOutboxRepo(s.now)
	return s
}

// id must be called with mu held for writing.
func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) monitorLock(id int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Transactor satisfies the transaction port for the memory driver. Each
// repo call is atomic on its own, so there is nothing to group.
type Transactor struct{}

func (Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
