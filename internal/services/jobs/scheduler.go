package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	mRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_runs_total", Help: "Background job runs, by job and result.",
	}, []string{"job", "result"})
	mDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobs_duration_seconds",
		Help:    "Background job duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

type JobFunc func(ctx context.Context) error

// Scheduler runs named jobs on cron specs. Overlapping runs of one job are
// skipped and panics are recovered by the cron chain.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
	ctx  context.Context
}

func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "jobs.scheduler"))
	cl := cronLogger{l: log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
		ctx: context.Background(),
	}
}

// Add registers fn under name. It must be called before Run.
func (s *Scheduler) Add(spec, name string, fn JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() { s.exec(name, fn) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) exec(name string, fn JobFunc) {
	start := time.Now()
	err := fn(s.ctx)
	mDur.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		mRuns.WithLabelValues(name, "error").Inc()
		s.log.Warn("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	mRuns.WithLabelValues(name, "ok").Inc()
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("job scheduler started", zap.Int("jobs", len(s.cron.Entries())))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("job scheduler stopped")
	return nil
}

// Every renders d as a cron "@every" spec.
func Every(d time.Duration) string { return "@every " + d.String() }

type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
