package worker_config

import (
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/upwatch/internal/obs"
	pginfra "github.com/NordCoder/upwatch/internal/repository/postgres"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverKafka    = "kafka"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Storage struct {
	Driver string `mapstructure:"driver"`
}

type Check struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	RetentionDays    int    `mapstructure:"retention_days"`
	FailureThreshold int    `mapstructure:"failure_threshold"`
	UserAgent        string `mapstructure:"user_agent"`
}

func (c Check) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

type Sched struct {
	Tick        time.Duration `mapstructure:"tick"`
	BatchLimit  int           `mapstructure:"batch_limit"`
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	InFlightTTL time.Duration `mapstructure:"inflight_ttl"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

type Queue struct {
	Driver string `mapstructure:"driver"`
}

type Kafka struct {
	Brokers    []string `mapstructure:"brokers"`
	CheckTopic string   `mapstructure:"check_topic"`
	EventTopic string   `mapstructure:"event_topic"`
	GroupID    string   `mapstructure:"group_id"`
	Partitions int      `mapstructure:"partitions"`
	Replicas   int      `mapstructure:"replicas"`
	Consumers  int      `mapstructure:"consumers"`
}

type Events struct {
	Enable bool `mapstructure:"enable"`
}

type Outbox struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	Wait          time.Duration `mapstructure:"wait"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

type Retention struct {
	Schedule string `mapstructure:"schedule"`
}

type SMTP struct {
	Addr       string        `mapstructure:"addr"`
	From       string        `mapstructure:"from"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SubjPrefix string        `mapstructure:"subj_prefix"`
}

type Push struct {
	APIURL     string        `mapstructure:"api_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Burst      int           `mapstructure:"burst"`
}

type Crypto struct {
	Key string `mapstructure:"key"`
}

type Config struct {
	App       App            `mapstructure:"app"`
	Log       obs.LogConfig  `mapstructure:"log"`
	OTEL      obs.OTELConfig `mapstructure:"otel"`
	DB        pginfra.Config `mapstructure:"db"`
	Storage   Storage        `mapstructure:"storage"`
	Check     Check          `mapstructure:"check"`
	Sched     Sched          `mapstructure:"sched"`
	Queue     Queue          `mapstructure:"queue"`
	Kafka     Kafka          `mapstructure:"kafka"`
	Events    Events         `mapstructure:"events"`
	Outbox    Outbox         `mapstructure:"outbox"`
	Retention Retention      `mapstructure:"retention"`
	SMTP      SMTP           `mapstructure:"smtp"`
	Push      Push           `mapstructure:"push"`
	Crypto    Crypto         `mapstructure:"crypto"`
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DB.URL == "" {
			errs = append(errs, errors.New("db.dsn is required for postgres storage"))
		}
		if c.Crypto.Key == "" {
			errs = append(errs, errors.New("crypto.key is required for postgres storage"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want postgres or memory", c.Storage.Driver))
	}
	switch c.Queue.Driver {
	case DriverMemory:
	case DriverKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.CheckTopic == "" {
			errs = append(errs, errors.New("kafka.brokers and kafka.check_topic are required for kafka queue"))
		}
		if c.Kafka.Consumers < 1 {
			errs = append(errs, errors.New("kafka.consumers must be >= 1"))
		}
		if c.Sched.InFlightTTL <= 0 {
			errs = append(errs, errors.New("sched.inflight_ttl must be > 0 for kafka queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("queue.driver %q: want memory or kafka", c.Queue.Driver))
	}
	if c.Events.Enable && (len(c.Kafka.Brokers) == 0 || c.Kafka.EventTopic == "") {
		errs = append(errs, errors.New("events.enable needs kafka.brokers and kafka.event_topic"))
	}
	if c.Check.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("check.timeout_seconds must be > 0"))
	}
	if c.Check.RetentionDays < 0 {
		errs = append(errs, errors.New("check.retention_days must be >= 0"))
	}
	if c.Check.FailureThreshold < 1 {
		errs = append(errs, errors.New("check.failure_threshold must be >= 1"))
	}
	if c.Sched.Tick <= 0 {
		errs = append(errs, errors.New("sched.tick must be > 0"))
	}
	if c.Sched.Workers <= 0 || c.Sched.QueueSize <= 0 {
		errs = append(errs, errors.New("sched.workers and sched.queue_size must be > 0"))
	}
	return errors.Join(errs...)
}
