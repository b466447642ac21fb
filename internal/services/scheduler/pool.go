package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mPoolDone = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_pool_tasks_total", Help: "Pool tasks finished, by result.",
	}, []string{"result"})
	mPoolQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_pool_queue_length", Help: "Tasks waiting for a pool worker.",
	})
)

type TaskFunc func(ctx context.Context, monitorID int64) error

// Pool runs tasks on a fixed set of goroutines fed by a bounded queue.
// Enqueue never blocks; a full queue rejects the task.
type Pool struct {
	log      *zap.Logger
	run      TaskFunc
	inflight *InFlight
	workers  int
	tasks    chan Task
}

func NewPool(workers, queueSize int, run TaskFunc, inflight *InFlight, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		log:      log.With(zap.String("component", "scheduler.pool")),
		run:      run,
		inflight: inflight,
		workers:  workers,
		tasks:    make(chan Task, queueSize),
	}
}

func (p *Pool) Enqueue(ctx context.Context, t Task) error {
	select {
	case p.tasks <- t:
		mPoolQueued.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is done and every running
// task has returned. Tasks still queued at shutdown are discarded.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	p.log.Info("pool started", zap.Int("workers", p.workers), zap.Int("queue", cap(p.tasks)))
	wg.Wait()
	p.log.Info("pool stopped")
	return nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.tasks:
			mPoolQueued.Dec()
			p.exec(ctx, t)
		}
	}
}

func (p *Pool) exec(ctx context.Context, t Task) {
	defer func() {
		if p.inflight != nil && t.Token != 0 {
			p.inflight.Release(t.MonitorID, t.Token)
		}
	}()
	if err := safeRun(ctx, p.run, t.MonitorID); err != nil {
		mPoolDone.WithLabelValues("error").Inc()
		p.log.Warn("check task failed", zap.Int64("monitor_id", t.MonitorID), zap.Error(err))
		return
	}
	mPoolDone.WithLabelValues("ok").Inc()
}

func safeRun(ctx context.Context, fn TaskFunc, monitorID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return fn(ctx, monitorID)
}
