package ping_worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/upwatch/internal/domain/check"
	"github.com/NordCoder/upwatch/internal/domain/events"
	"github.com/NordCoder/upwatch/internal/domain/monitor"
	"github.com/NordCoder/upwatch/internal/domain/notification"
	"github.com/NordCoder/upwatch/internal/domain/outbox"
	"github.com/NordCoder/upwatch/internal/domain/user"
	"github.com/NordCoder/upwatch/internal/repository/memory"
	"github.com/NordCoder/upwatch/internal/services/notifier"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type scriptedProbe struct {
	mu  sync.Mutex
	out []check.Outcome
}

func (p *scriptedProbe) Probe(context.Context, string) check.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.out) == 0 {
		return check.Responded{StatusCode: 200}
	}
	o := p.out[0]
	p.out = p.out[1:]
	return o
}

type inbox struct {
	mu   sync.Mutex
	sent []notification.EmailData
}

func (b *inbox) Send(_ context.Context, _ string, d notification.EmailData) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, d)
	return nil
}

func (b *inbox) all() []notification.EmailData {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]notification.EmailData(nil), b.sent...)
}

type rig struct {
	store *memory.Store
	clock *testClock
	probe *scriptedProbe
	inbox *inbox
	h     *Handler
	mon   *monitor.Monitor
}

func newRig(t *testing.T, policy monitor.Policy) *rig {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	u := &user.User{Email: "owner@example.com"}
	require.NoError(t, st.Users.Create(ctx, u))
	require.NoError(t, st.Settings.Upsert(ctx, notification.DefaultSettings(u.ID)))
	m := &monitor.Monitor{UserID: u.ID, Name: "shop", URL: "http://shop.example", IntervalMinutes: 1}
	require.NoError(t, st.Monitors.Create(ctx, m))

	r, err := notifier.NewRenderer()
	require.NoError(t, err)

	rg := &rig{store: st, clock: &testClock{t: t0}, probe: &scriptedProbe{}, inbox: &inbox{}, mon: m}
	rg.h = &Handler{
		Monitors: st.Monitors,
		Prober:   rg.probe,
		Recorder: &Recorder{Checks: st.Checks, Clock: rg.clock},
		Transitioner: &Transitioner{
			Monitors: st.Monitors,
			Tx:       memory.Transactor{},
			Outbox:   st.Outbox,
			Policy:   policy,
		},
		Notifier: &notifier.Dispatcher{
			Settings:   st.Settings,
			Users:      st.Users,
			Deliveries: st.Deliveries,
			Email:      rg.inbox,
			Render:     r,
			Clock:      rg.clock,
			Log:        zap.NewNop(),
		},
		Clock: rg.clock,
		Log:   zap.NewNop(),
	}
	return rg
}

func (r *rig) runAt(t *testing.T, at time.Time, o check.Outcome) {
	t.Helper()
	r.clock.Set(at)
	r.probe.mu.Lock()
	r.probe.out = append(r.probe.out, o)
	r.probe.mu.Unlock()
	require.NoError(t, r.h.HandleCheck(context.Background(), r.mon.ID))
}

func TestPipeline_DownThenRecoveryReportsDowntime(t *testing.T) {
	r := newRig(t, monitor.DefaultPolicy())

	r.runAt(t, t0, check.Unreachable{Reason: "connection refused"})
	r.runAt(t, t0.Add(time.Minute), check.Responded{StatusCode: 503})
	r.runAt(t, t0.Add(5*time.Minute), check.Responded{StatusCode: 200, ElapsedMS: 12})

	mails := r.inbox.all()
	require.Len(t, mails, 2)
	assert.Equal(t, "[DOWN] shop", mails[0].Subject)
	assert.Contains(t, mails[0].PlainBody, "connection refused")
	assert.Equal(t, "[UP] shop", mails[1].Subject)
	assert.Contains(t, mails[1].PlainBody, "Down for: 5m0s")

	m, err := r.store.Monitors.GetByID(context.Background(), r.mon.ID)
	require.NoError(t, err)
	assert.Equal(t, monitor.StatusUp, m.Status)
	require.NotNil(t, m.LastStatusChangeAt)
	assert.Equal(t, t0.Add(5*time.Minute), *m.LastStatusChangeAt)

	checks, err := r.store.Checks.ListByMonitor(context.Background(), r.mon.ID, 10)
	require.NoError(t, err)
	assert.Len(t, checks, 3)

	dels, err := r.store.Deliveries.ListByMonitor(context.Background(), r.mon.ID, 10)
	require.NoError(t, err)
	assert.Len(t, dels, 2)
}

func TestPipeline_FirstSuccessIsSilent(t *testing.T) {
	r := newRig(t, monitor.DefaultPolicy())
	for i := 0; i < 3; i++ {
		r.runAt(t, t0.Add(time.Duration(i)*time.Minute), check.Responded{StatusCode: 200})
	}
	assert.Empty(t, r.inbox.all())

	r.runAt(t, t0.Add(3*time.Minute), check.Responded{StatusCode: 500})
	r.runAt(t, t0.Add(4*time.Minute), check.Responded{StatusCode: 500})
	assert.Len(t, r.inbox.all(), 1)
}

func TestPipeline_ThresholdDelaysAlert(t *testing.T) {
	r := newRig(t, monitor.Policy{FailureThreshold: 3})
	r.runAt(t, t0, check.Responded{StatusCode: 200})
	r.runAt(t, t0.Add(time.Minute), check.Responded{StatusCode: 500})
	r.runAt(t, t0.Add(2*time.Minute), check.Responded{StatusCode: 500})
	assert.Empty(t, r.inbox.all())
	r.runAt(t, t0.Add(3*time.Minute), check.Responded{StatusCode: 500})
	assert.Len(t, r.inbox.all(), 1)
}

func TestPipeline_StaleCheckRecordedNotApplied(t *testing.T) {
	r := newRig(t, monitor.DefaultPolicy())
	r.runAt(t, t0.Add(time.Minute), check.Responded{StatusCode: 200})
	r.runAt(t, t0, check.Responded{StatusCode: 500})

	m, err := r.store.Monitors.GetByID(context.Background(), r.mon.ID)
	require.NoError(t, err)
	assert.Equal(t, monitor.StatusUp, m.Status)
	assert.Equal(t, t0.Add(time.Minute), *m.LastCheckedAt)

	checks, err := r.store.Checks.ListByMonitor(context.Background(), r.mon.ID, 10)
	require.NoError(t, err)
	assert.Len(t, checks, 2)
	assert.Empty(t, r.inbox.all())
}

func TestPipeline_MissingMonitorIsSkipped(t *testing.T) {
	r := newRig(t, monitor.DefaultPolicy())
	assert.NoError(t, r.h.HandleCheck(context.Background(), 9999))
	assert.NoError(t, r.h.HandleCheck(context.Background(), 0))
}

// cancelOnProbe stands in for a shutdown that lands while the request is out.
type cancelOnProbe struct{ cancel context.CancelFunc }

func (p cancelOnProbe) Probe(ctx context.Context, _ string) check.Outcome {
	p.cancel()
	<-ctx.Done()
	return check.Unreachable{Reason: ctx.Err().Error()}
}

func TestPipeline_ShutdownDuringProbeRecordsNothing(t *testing.T) {
	r := newRig(t, monitor.DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.h.Prober = cancelOnProbe{cancel: cancel}

	require.NoError(t, r.h.HandleCheck(ctx, r.mon.ID))

	bg := context.Background()
	checks, err := r.store.Checks.ListByMonitor(bg, r.mon.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, checks)

	m, err := r.store.Monitors.GetByID(bg, r.mon.ID)
	require.NoError(t, err)
	assert.Equal(t, monitor.StatusPending, m.Status)
	assert.Nil(t, m.LastCheckedAt)
	assert.Equal(t, 0, m.ConsecutiveFailures)
}

type failingChecks struct{ check.Repo }

func (failingChecks) Insert(context.Context, *check.Check) error { return errors.New("disk full") }

func TestPipeline_PersistenceFailureAborts(t *testing.T) {
	r := newRig(t, monitor.DefaultPolicy())
	r.h.Recorder.Checks = failingChecks{}

	err := r.h.HandleCheck(context.Background(), r.mon.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record check")

	m, err := r.store.Monitors.GetByID(context.Background(), r.mon.ID)
	require.NoError(t, err)
	assert.Equal(t, monitor.StatusPending, m.Status)
}

func TestTransitioner_ConcurrentAppliesOnOneMonitor(t *testing.T) {
	r := newRig(t, monitor.DefaultPolicy())
	ctx := context.Background()
	const n = 50

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		transitions int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.h.Recorder.Record(ctx, r.mon.ID, check.Responded{StatusCode: 500}, t0)
			if !assert.NoError(t, err) {
				return
			}
			res, _, err := r.h.Transitioner.Apply(ctx, r.mon.ID, c)
			if !assert.NoError(t, err) {
				return
			}
			if res.Transitioned {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transitions)
	m, err := r.store.Monitors.GetByID(ctx, r.mon.ID)
	require.NoError(t, err)
	assert.Equal(t, monitor.StatusDown, m.Status)
	assert.Equal(t, n, m.ConsecutiveFailures)

	msgs, err := r.store.Outbox.PickBatch(ctx, 100, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, outbox.KindStatusChanged, msgs[0].Kind)

	var ev events.StatusChanged
	require.NoError(t, json.Unmarshal(msgs[0].Data, &ev))
	assert.Equal(t, r.mon.ID, ev.MonitorID)
	assert.Equal(t, "pending", ev.From)
	assert.Equal(t, "down", ev.To)
	assert.True(t, ev.Notify)
}

type finalState struct {
	Status              monitor.Status
	LastCheckedAt       int64
	LastStatusChangeAt  int64
	ConsecutiveFailures int
	Transitions         int
}

func stateOf(m *monitor.Monitor, transitions int) finalState {
	fs := finalState{Status: m.Status, ConsecutiveFailures: m.ConsecutiveFailures, Transitions: transitions}
	if m.LastCheckedAt != nil {
		fs.LastCheckedAt = m.LastCheckedAt.UnixNano()
	}
	if m.LastStatusChangeAt != nil {
		fs.LastStatusChangeAt = m.LastStatusChangeAt.UnixNano()
	}
	return fs
}

func applyInOrder(start *monitor.Monitor, cs ...*check.Check) finalState {
	m := start.Clone()
	n := 0
	for _, c := range cs {
		if monitor.Apply(m, c, monitor.DefaultPolicy()).Transitioned {
			n++
		}
	}
	return stateOf(m, n)
}

func TestTransitioner_SuccessRacesFailure(t *testing.T) {
	ctx := context.Background()
	t1 := t0.Add(time.Second)

	for round := 0; round < 25; round++ {
		r := newRig(t, monitor.DefaultPolicy())
		ok, err := r.h.Recorder.Record(ctx, r.mon.ID, check.Responded{StatusCode: 200}, t0)
		require.NoError(t, err)
		bad, err := r.h.Recorder.Record(ctx, r.mon.ID, check.Responded{StatusCode: 500}, t1)
		require.NoError(t, err)

		start, err := r.store.Monitors.GetByID(ctx, r.mon.ID)
		require.NoError(t, err)
		successLast := applyInOrder(start, bad, ok)
		failureLast := applyInOrder(start, ok, bad)

		var (
			wg          sync.WaitGroup
			mu          sync.Mutex
			transitions int
		)
		gate := make(chan struct{})
		for _, c := range []*check.Check{ok, bad} {
			wg.Add(1)
			go func(c *check.Check) {
				defer wg.Done()
				<-gate
				res, _, err := r.h.Transitioner.Apply(ctx, r.mon.ID, c)
				if assert.NoError(t, err) && res.Transitioned {
					mu.Lock()
					transitions++
					mu.Unlock()
				}
			}(c)
		}
		close(gate)
		wg.Wait()

		m, err := r.store.Monitors.GetByID(ctx, r.mon.ID)
		require.NoError(t, err)
		got := stateOf(m, transitions)
		if got != successLast && got != failureLast {
			t.Fatalf("round %d: final state %+v matches neither order (%+v, %+v)", round, got, successLast, failureLast)
		}
		assert.Equal(t, t1.UnixNano(), got.LastCheckedAt, "last_checked_at never moves backwards")

		msgs, err := r.store.Outbox.PickBatch(ctx, 10, time.Minute)
		require.NoError(t, err)
		assert.Len(t, msgs, got.Transitions, "one event per applied transition")
	}
}

func TestTransitioner_EventPerTransitionOnly(t *testing.T) {
	r := newRig(t, monitor.DefaultPolicy())
	r.runAt(t, t0, check.Responded{StatusCode: 200})
	r.runAt(t, t0.Add(time.Minute), check.Responded{StatusCode: 200})

	msgs, err := r.store.Outbox.PickBatch(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var ev events.StatusChanged
	require.NoError(t, json.Unmarshal(msgs[0].Data, &ev))
	assert.Equal(t, "up", ev.To)
	assert.False(t, ev.Notify)
}

func TestRecorder_StoresClassifiedCheck(t *testing.T) {
	r := newRig(t, monitor.DefaultPolicy())
	r.clock.Set(t0.Add(time.Second))

	c, err := r.h.Recorder.Record(context.Background(), r.mon.ID, check.Unreachable{Reason: "dns lookup failed: no such host"}, t0)
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.Equal(t, check.StatusFailed, c.Status)
	assert.Nil(t, c.StatusCode)
	require.NotNil(t, c.ErrorMessage)
	assert.Equal(t, "dns lookup failed: no such host", *c.ErrorMessage)
	assert.Equal(t, t0, c.CheckedAt)
	assert.Equal(t, t0.Add(time.Second), c.CreatedAt)
}
