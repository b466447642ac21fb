package worker_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(EnvFileVar, "")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Check.TimeoutSeconds)
	assert.Equal(t, 30*time.Second, cfg.Check.Timeout())
	assert.Equal(t, 30, cfg.Check.RetentionDays)
	assert.Equal(t, 1, cfg.Check.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Sched.Tick)
	assert.Equal(t, DriverMemory, cfg.Queue.Driver)
	assert.Equal(t, "@hourly", cfg.Retention.Schedule)
	assert.Equal(t, []string{"localhost:9094"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Kafka.Consumers)
	assert.Equal(t, "upwatch-worker", cfg.Log.App)
	assert.Equal(t, 5*time.Second, cfg.DB.QueryTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CHECK_RETENTION_DAYS", "0")
	t.Setenv("CHECK_TIMEOUT_SECONDS", "5")
	t.Setenv("SCHED_TICK", "15s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Check.RetentionDays)
	assert.Equal(t, 5, cfg.Check.TimeoutSeconds)
	assert.Equal(t, 15*time.Second, cfg.Sched.Tick)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
check:
  failure_threshold: 3
  user_agent: probe/2
sched:
  workers: 4
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Check.FailureThreshold)
	assert.Equal(t, "probe/2", cfg.Check.UserAgent)
	assert.Equal(t, 4, cfg.Sched.Workers)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORAGE_DRIVER=memory\nCHECK_RETENTION_DAYS=7\n"), 0o600))
	os.Unsetenv("STORAGE_DRIVER")
	os.Unsetenv("CHECK_RETENTION_DAYS")
	t.Cleanup(func() {
		os.Unsetenv("STORAGE_DRIVER")
		os.Unsetenv("CHECK_RETENTION_DAYS")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Check.RetentionDays)
}

func TestLoad_ExplicitEnvFileMissing(t *testing.T) {
	isolate(t)
	t.Setenv(EnvFileVar, "/nonexistent/upwatch.env")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	isolate(t)
	_, err := Load("/nonexistent/worker.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	t.Setenv("STORAGE_DRIVER", "memory")
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"bad storage":        func(c *Config) { c.Storage.Driver = "sqlite" },
		"postgres no key":    func(c *Config) { c.Storage.Driver = DriverPostgres },
		"bad queue":          func(c *Config) { c.Queue.Driver = "redis" },
		"negative retention": func(c *Config) { c.Check.RetentionDays = -1 },
		"zero timeout":       func(c *Config) { c.Check.TimeoutSeconds = 0 },
		"zero threshold":     func(c *Config) { c.Check.FailureThreshold = 0 },
		"zero tick":          func(c *Config) { c.Sched.Tick = 0 },
		"events no topic":    func(c *Config) { c.Events.Enable = true; c.Kafka.EventTopic = "" },
		"kafka without ttl":  func(c *Config) { c.Queue.Driver = DriverKafka; c.Sched.InFlightTTL = 0 },
		"kafka no consumers": func(c *Config) { c.Queue.Driver = DriverKafka; c.Kafka.Consumers = 0 },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mut(&c)
			assert.Error(t, c.Validate())
		})
	}

	pg := *base
	pg.Storage.Driver = DriverPostgres
	pg.Crypto.Key = "a2V5"
	assert.NoError(t, pg.Validate())
}
