package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	config "github.com/NordCoder/upwatch/internal/config/worker"
	"github.com/NordCoder/upwatch/internal/crypto"
	"github.com/NordCoder/upwatch/internal/domain/check"
	"github.com/NordCoder/upwatch/internal/domain/heartbeat"
	"github.com/NordCoder/upwatch/internal/domain/monitor"
	"github.com/NordCoder/upwatch/internal/domain/notification"
	"github.com/NordCoder/upwatch/internal/domain/outbox"
	"github.com/NordCoder/upwatch/internal/domain/user"
	"github.com/NordCoder/upwatch/internal/obs"
	"github.com/NordCoder/upwatch/internal/obs/retry"
	"github.com/NordCoder/upwatch/internal/repository/memory"
	pg "github.com/NordCoder/upwatch/internal/repository/postgres"
	pingworker "github.com/NordCoder/upwatch/internal/services/ping-worker"
)

// storage bundles every port the worker needs from one backend.
type storage struct {
	monitors   monitor.Repo
	checks     check.Repo
	users      user.Reader
	settings   notification.SettingsRepo
	deliveries notification.DeliveryRepo
	heartbeats heartbeat.Store
	outbox     outbox.Repository
	tx         pingworker.Transactor
	ping       obs.HealthFunc
	close      func()
}

func openStorage(ctx context.Context, cfg *config.Config, l *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		l.Warn("memory storage: state is lost on exit")
		st := memory.New()
		return &storage{
			monitors:   st.Monitors,
			checks:     st.Checks,
			users:      st.Users,
			settings:   st.Settings,
			deliveries: st.Deliveries,
			heartbeats: st.Heartbeats,
			outbox:     st.Outbox,
			tx:         memory.Transactor{},
			close:      func() {},
		}, nil

	case config.DriverPostgres:
		sealer, err := crypto.NewSealerFromBase64(cfg.Crypto.Key)
		if err != nil {
			return nil, fmt.Errorf("crypto key: %w", err)
		}

		var db *pg.DB
		err = retry.Do(ctx, func() error {
			var err error
			db, err = pg.New(ctx, cfg.DB)
			return err
		}, retry.StartupPolicy("postgres_connect", l))
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}

		tx := pg.NewTransactor(db, l)
		return &storage{
			monitors:   pg.NewMonitorRepo(db, tx),
			checks:     pg.NewCheckRepo(db),
			users:      pg.NewUserRepo(db),
			settings:   pg.NewSettingsRepo(db, sealer),
			deliveries: pg.NewDeliveryRepo(db),
			heartbeats: pg.NewHeartbeatRepo(db),
			outbox:     pg.NewOutboxRepo(db),
			tx:         tx,
			ping:       db.Ping,
			close:      db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
