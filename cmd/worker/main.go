package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "github.com/NordCoder/upwatch/internal/config/worker"
	"github.com/NordCoder/upwatch/internal/domain/heartbeat"
	"github.com/NordCoder/upwatch/internal/domain/monitor"
	"github.com/NordCoder/upwatch/internal/domain/notification"
	"github.com/NordCoder/upwatch/internal/obs"
	"github.com/NordCoder/upwatch/internal/obs/retry"
	"github.com/NordCoder/upwatch/internal/outbox"
	"github.com/NordCoder/upwatch/internal/repository/kafka"
	"github.com/NordCoder/upwatch/internal/services/jobs"
	"github.com/NordCoder/upwatch/internal/services/notifier"
	pingworker "github.com/NordCoder/upwatch/internal/services/ping-worker"
	"github.com/NordCoder/upwatch/internal/services/scheduler"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("UPWATCH_CONFIG"), "path to YAML config")
	flag.Parse()

	// init
	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting worker",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("queue", cfg.Queue.Driver),
		zap.Bool("events", cfg.Events.Enable),
		zap.Duration("tick", cfg.Sched.Tick),
	)

	// otel
	otelCloser, err := obs.SetupOTel(root, &cfg.OTEL, cfg.App.Version, cfg.App.Env)
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// storage
	st, err := openStorage(root, cfg, l)
	if err != nil {
		l.Fatal("storage", zap.Error(err))
	}
	defer st.close()

	if err := run(root, cfg, st, l); err != nil {
		l.Error("worker stopped with error", zap.Error(err))
		return
	}
	l.Info("bye")
}

func run(ctx context.Context, cfg *config.Config, st *storage, l *zap.Logger) error {
	clock := notification.SystemClock{}

	// notifier
	renderer, err := notifier.NewRenderer()
	if err != nil {
		return err
	}
	dispatcher := &notifier.Dispatcher{
		Settings:   st.settings,
		Users:      st.users,
		Deliveries: st.deliveries,
		Email:      notifier.NewMailer(cfg.SMTP).WithLogger(l),
		Push:       notifier.NewPushover(cfg.Push).WithLogger(l),
		Render:     renderer,
		Clock:      clock,
		Log:        l,
	}

	// pipeline
	transitioner := &pingworker.Transitioner{
		Monitors: st.monitors,
		Tx:       st.tx,
		Policy:   monitor.Policy{FailureThreshold: cfg.Check.FailureThreshold},
	}
	if cfg.Events.Enable {
		transitioner.Outbox = st.outbox
	}
	handler := &pingworker.Handler{
		Monitors: st.monitors,
		Prober: pingworker.NewProber(pingworker.ProberConfig{
			Timeout:   cfg.Check.Timeout(),
			UserAgent: cfg.Check.UserAgent,
		}),
		Recorder:     &pingworker.Recorder{Checks: st.checks, Clock: clock},
		Transitioner: transitioner,
		Notifier:     dispatcher,
		Clock:        clock,
		Log:          l,
	}

	g, gctx := errgroup.WithContext(ctx)

	// queue
	var (
		inflight *scheduler.InFlight
		queue    scheduler.Enqueuer
	)
	switch cfg.Queue.Driver {
	case config.DriverKafka:
		inflight = scheduler.NewInFlight(cfg.Sched.InFlightTTL)
		prod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.CheckTopic).WithLogger(l)
		defer func() { _ = prod.Close() }()
		queue = &scheduler.KafkaEnqueuer{Events: kafka.NewCheckRequestsKafka(prod)}

		ccfg := &kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
			Topic:   cfg.Kafka.CheckTopic,
			Logger:  l,
		}
		// group members split the partitions; each one checks in order
		subs := make([]pingworker.Consumer, 0, cfg.Kafka.Consumers)
		for i := range cfg.Kafka.Consumers {
			var cons *kafka.Consumer
			if i == 0 {
				cons = kafka.BootstrapConsumer(gctx, ccfg, cfg.Kafka.Partitions, cfg.Kafka.Replicas, l)
			} else {
				cons = kafka.NewConsumer(ccfg)
			}
			defer func() { _ = cons.Close() }()
			subs = append(subs, cons)
		}
		ctrl := &pingworker.Controller{Log: l, Subs: subs, UC: handler}
		g.Go(func() error { return ignoreCanceled(ctrl.Run(gctx)) })
	default:
		// Pool tasks release their own marker, so markers never expire here.
		inflight = scheduler.NewInFlight(0)
		pool := scheduler.NewPool(cfg.Sched.Workers, cfg.Sched.QueueSize, handler.HandleCheck, inflight, l)
		queue = pool
		g.Go(func() error { return pool.Run(gctx) })
	}

	// scheduler
	runner := &scheduler.Runner{
		Log: l.With(zap.String("component", "scheduler.runner")),
		UC: &scheduler.Usecase{
			Monitors: st.monitors,
			Queue:    queue,
			InFlight: inflight,
			Limit:    cfg.Sched.BatchLimit,
			Log:      l.With(zap.String("component", "scheduler.usecase")),
		},
		Tick:     cfg.Sched.Tick,
		Clock:    clock,
		InFlight: inflight,
	}
	g.Go(func() error { return ignoreCanceled(runner.Run(gctx)) })

	// cron jobs
	beat := &jobs.HeartbeatRecorder{Store: st.heartbeats, Name: heartbeat.SchedulerName, Clock: clock, Log: l}
	_ = beat.Beat(gctx)
	pruner := &jobs.Pruner{Checks: st.checks, RetentionDays: cfg.Check.RetentionDays, Clock: clock, Log: l}
	cron := jobs.NewScheduler(l)
	if err := cron.Add(jobs.Every(cfg.Sched.Tick), "heartbeat", beat.Beat); err != nil {
		return err
	}
	if err := cron.Add(cfg.Retention.Schedule, "retention", pruner.Job); err != nil {
		return err
	}
	g.Go(func() error { return cron.Run(gctx) })

	// outbox relay
	if cfg.Events.Enable {
		if err := kafka.EnsureTopics(gctx, cfg.Kafka.Brokers, []kafka.TopicSpec{{
			Name: cfg.Kafka.EventTopic, NumPartitions: cfg.Kafka.Partitions, ReplicationFactor: cfg.Kafka.Replicas,
		}}, l); err != nil {
			l.Warn("ensure event topic", zap.Error(err))
		}
		prod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventTopic).WithLogger(l)
		defer func() { _ = prod.Close() }()
		relay := outbox.NewOutboxRunner(l, st.outbox,
			outbox.MakeGlobalHandler(kafka.NewStatusEventsKafka(prod), retry.PublishPolicy("outbox_status_changed", l)),
			outbox.Config{
				Workers:       cfg.Outbox.Workers,
				BatchSize:     cfg.Outbox.BatchSize,
				Wait:          cfg.Outbox.Wait,
				InProgressTTL: cfg.Outbox.InProgressTTL,
			})
		g.Go(func() error { return relay.Run(gctx) })
	}

	// metrics
	health := obs.AllOf(st.ping, jobs.HeartbeatHealth(st.heartbeats, heartbeat.SchedulerName, 3*cfg.Sched.Tick, clock))
	ms := obs.BootstrapMetricsServer(cfg.Sched.MetricsAddr, health, l)
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return ms.Shutdown(shCtx)
	})

	l.Info("worker started")
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
