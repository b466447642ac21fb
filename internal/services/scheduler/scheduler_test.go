package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/upwatch/internal/domain/events"
	"github.com/NordCoder/upwatch/internal/domain/monitor"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type staticDue struct {
	list []*monitor.Monitor
	err  error
	seen []time.Time
	mu   sync.Mutex
}

func (s *staticDue) FetchDue(_ context.Context, now time.Time, limit int) ([]*monitor.Monitor, error) {
	s.mu.Lock()
	s.seen = append(s.seen, now)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.list) > limit {
		return s.list[:limit], nil
	}
	return s.list, nil
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []Task
	err   func(Task) error
}

func (q *recordingQueue) Enqueue(_ context.Context, t Task) error {
	if q.err != nil {
		if err := q.err(t); err != nil {
			return err
		}
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
	return nil
}

func monitors(n int) []*monitor.Monitor {
	out := make([]*monitor.Monitor, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &monitor.Monitor{ID: int64(i), URL: "http://example.com", IntervalMinutes: 1})
	}
	return out
}

func acquired(f *InFlight, id int64, now time.Time) bool {
	_, ok := f.Acquire(id, now)
	return ok
}

func TestInFlight_AcquireReleaseExpire(t *testing.T) {
	f := NewInFlight(time.Minute)
	tok1, ok := f.Acquire(1, t0)
	require.True(t, ok)
	assert.NotZero(t, tok1)
	assert.False(t, acquired(f, 1, t0.Add(30*time.Second)))
	assert.True(t, acquired(f, 2, t0))

	f.Release(1, tok1)
	assert.True(t, acquired(f, 1, t0))

	assert.True(t, acquired(f, 2, t0.Add(time.Minute)), "marker lapses at ttl")
	assert.Equal(t, 1, f.Sweep(t0.Add(90*time.Second)))
}

func TestInFlight_StaleTokenKeepsNewMarker(t *testing.T) {
	f := NewInFlight(time.Minute)
	old, ok := f.Acquire(1, t0)
	require.True(t, ok)
	cur, ok := f.Acquire(1, t0.Add(2*time.Minute))
	require.True(t, ok)
	assert.NotEqual(t, old, cur)

	f.Release(1, old)
	assert.False(t, acquired(f, 1, t0.Add(2*time.Minute)), "old holder must not clear the new marker")

	f.Release(1, cur)
	assert.True(t, acquired(f, 1, t0.Add(2*time.Minute)))
}

func TestInFlight_NoTTLNeverLapses(t *testing.T) {
	f := NewInFlight(0)
	tok, ok := f.Acquire(1, t0)
	require.True(t, ok)
	assert.False(t, acquired(f, 1, t0.Add(24*time.Hour)))
	assert.Equal(t, 1, f.Sweep(t0.Add(24*time.Hour)))
	assert.Equal(t, 1, f.Len())

	f.Release(1, tok)
	assert.Zero(t, f.Len())
}

func TestUsecase_TickEnqueuesDue(t *testing.T) {
	q := &recordingQueue{}
	src := &staticDue{list: monitors(3)}
	uc := &Usecase{Monitors: src, Queue: q, InFlight: NewInFlight(time.Minute), Limit: 10, Log: zap.NewNop()}

	st, err := uc.Tick(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, TickStats{Fetched: 3, Enqueued: 3}, st)
	require.Len(t, q.tasks, 3)
	assert.Equal(t, int64(1), q.tasks[0].MonitorID)
	assert.Equal(t, []time.Time{t0}, src.seen)

	st, err = uc.Tick(context.Background(), t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, st.Skipped)
	assert.Len(t, q.tasks, 3)
}

func TestUsecase_TickRespectsLimit(t *testing.T) {
	q := &recordingQueue{}
	uc := &Usecase{Monitors: &staticDue{list: monitors(5)}, Queue: q, Limit: 2, Log: zap.NewNop()}
	st, err := uc.Tick(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Fetched)
}

func TestUsecase_FullQueueReleasesMarker(t *testing.T) {
	inflight := NewInFlight(time.Minute)
	q := &recordingQueue{err: func(t Task) error {
		if t.MonitorID == 2 {
			return ErrQueueFull
		}
		if t.MonitorID == 3 {
			return errors.New("broker down")
		}
		return nil
	}}
	uc := &Usecase{Monitors: &staticDue{list: monitors(3)}, Queue: q, InFlight: inflight, Log: zap.NewNop()}

	st, err := uc.Tick(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, TickStats{Fetched: 3, Enqueued: 1, Dropped: 1, Errors: 1}, st)
	assert.False(t, acquired(inflight, 1, t0))
	assert.True(t, acquired(inflight, 2, t0))
	assert.True(t, acquired(inflight, 3, t0))
}

func TestUsecase_InFlightDoesNotCrowdBatch(t *testing.T) {
	inflight := NewInFlight(0)
	for i := int64(1); i <= 2; i++ {
		_, ok := inflight.Acquire(i, t0)
		require.True(t, ok)
	}
	q := &recordingQueue{}
	uc := &Usecase{Monitors: &staticDue{list: monitors(5)}, Queue: q, InFlight: inflight, Limit: 2, Log: zap.NewNop()}

	st, err := uc.Tick(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Skipped)
	assert.Equal(t, 2, st.Enqueued)
	require.Len(t, q.tasks, 2)
	assert.Equal(t, int64(3), q.tasks[0].MonitorID)
	assert.Equal(t, int64(4), q.tasks[1].MonitorID)
}

func TestUsecase_FetchError(t *testing.T) {
	uc := &Usecase{Monitors: &staticDue{err: errors.New("db gone")}, Queue: &recordingQueue{}, Log: zap.NewNop()}
	_, err := uc.Tick(context.Background(), t0)
	assert.ErrorContains(t, err, "fetch due")
}

func TestPool_RunsTasksAndReleases(t *testing.T) {
	inflight := NewInFlight(time.Minute)
	var ran atomic.Int32
	done := make(chan struct{}, 10)
	p := NewPool(2, 10, func(ctx context.Context, id int64) error {
		ran.Add(1)
		done <- struct{}{}
		if id == 2 {
			panic("probe blew up")
		}
		if id == 3 {
			return errors.New("db error")
		}
		return nil
	}, inflight, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(stopped)
	}()

	for i := int64(1); i <= 4; i++ {
		tok, ok := inflight.Acquire(i, t0)
		require.True(t, ok)
		require.NoError(t, p.Enqueue(ctx, Task{MonitorID: i, Token: tok}))
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run")
		}
	}

	require.Eventually(t, func() bool { return inflight.Sweep(t0) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(4), ran.Load())

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
}

func TestPool_EnqueueNeverBlocks(t *testing.T) {
	p := NewPool(1, 1, func(context.Context, int64) error { return nil }, nil, zap.NewNop())
	require.NoError(t, p.Enqueue(context.Background(), Task{MonitorID: 1}))
	assert.ErrorIs(t, p.Enqueue(context.Background(), Task{MonitorID: 2}), ErrQueueFull)
}

func TestPool_SlowTaskDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	fast := make(chan int64, 1)
	p := NewPool(2, 4, func(ctx context.Context, id int64) error {
		if id == 1 {
			<-release
			return nil
		}
		fast <- id
		return nil
	}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.NoError(t, p.Enqueue(ctx, Task{MonitorID: 1}))
	require.NoError(t, p.Enqueue(ctx, Task{MonitorID: 2}))
	select {
	case id := <-fast:
		assert.Equal(t, int64(2), id)
	case <-time.After(2 * time.Second):
		t.Fatal("fast task waited on slow one")
	}
	close(release)
}

type capturePublisher struct {
	got []events.CheckRequested
	err error
}

func (c *capturePublisher) PublishCheckRequested(_ context.Context, ev events.CheckRequested) error {
	if c.err != nil {
		return c.err
	}
	c.got = append(c.got, ev)
	return nil
}

func TestKafkaEnqueuer(t *testing.T) {
	pub := &capturePublisher{}
	k := &KafkaEnqueuer{Events: pub, Now: func() time.Time { return t0 }}
	require.NoError(t, k.Enqueue(context.Background(), Task{MonitorID: 5, URL: "http://x"}))
	require.Len(t, pub.got, 1)
	assert.Equal(t, events.CheckRequested{MonitorID: 5, URL: "http://x", RequestedAt: t0}, pub.got[0])

	pub.err = errors.New("no leader")
	assert.ErrorContains(t, k.Enqueue(context.Background(), Task{MonitorID: 6}), "publish check request")
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestRunner_TicksImmediately(t *testing.T) {
	src := &staticDue{}
	r := &Runner{
		Log:   zap.NewNop(),
		UC:    &Usecase{Monitors: src, Queue: &recordingQueue{}, Log: zap.NewNop()},
		Tick:  time.Hour,
		Clock: fixedClock{t0},
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.seen) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

type panicDue struct{}

func (panicDue) FetchDue(context.Context, time.Time, int) ([]*monitor.Monitor, error) {
	panic("driver bug")
}

func TestRunner_TickPanicRecovered(t *testing.T) {
	r := &Runner{
		Log:   zap.NewNop(),
		UC:    &Usecase{Monitors: panicDue{}, Queue: &recordingQueue{}, Log: zap.NewNop()},
		Tick:  time.Hour,
		Clock: fixedClock{t0},
	}
	assert.NotPanics(t, func() { r.tick(context.Background()) })
}

func TestRunner_RejectsZeroTick(t *testing.T) {
	r := &Runner{Log: zap.NewNop(), Clock: fixedClock{t0}}
	assert.Error(t, r.Run(context.Background()))
}

type countingQueue struct {
	inner Enqueuer
	mu    sync.Mutex
	n     map[int64]int
}

func (c *countingQueue) Enqueue(ctx context.Context, t Task) error {
	err := c.inner.Enqueue(ctx, t)
	if err == nil {
		c.mu.Lock()
		c.n[t.MonitorID]++
		c.mu.Unlock()
	}
	return err
}

func (c *countingQueue) count(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[id]
}

type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *steppingClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestRunner_QueuedTaskHoldsMarkerAcrossTicks(t *testing.T) {
	inflight := NewInFlight(0)
	busy := make(chan struct{})
	started := make(chan struct{}, 1)
	p := NewPool(1, 16, func(ctx context.Context, id int64) error {
		if id == 99 {
			started <- struct{}{}
			<-busy
		}
		return nil
	}, inflight, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.NoError(t, p.Enqueue(ctx, Task{MonitorID: 99}))
	<-started

	q := &countingQueue{inner: p, n: map[int64]int{}}
	clock := &steppingClock{t: t0}
	r := &Runner{
		Log:      zap.NewNop(),
		UC:       &Usecase{Monitors: &staticDue{list: monitors(1)}, Queue: q, InFlight: inflight, Limit: 10, Log: zap.NewNop()},
		Tick:     time.Minute,
		Clock:    clock,
		InFlight: inflight,
	}
	for i := 0; i < 6; i++ {
		r.tick(ctx)
		clock.advance(time.Minute)
	}
	assert.Equal(t, 1, q.count(1), "a queued check keeps its marker until it runs")

	close(busy)
	require.Eventually(t, func() bool { return inflight.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	r.tick(ctx)
	assert.Equal(t, 2, q.count(1))
}
