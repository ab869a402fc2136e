package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, ":8080", cfg.Server.Addr())
	require.Equal(t, 10, cfg.Crawler.BatchSize)
	require.Equal(t, 4, cfg.Crawler.FetchConcurrency)
	require.Equal(t, "memory", cfg.Storage.CatalogProvider)
	require.Equal(t, "memory", cfg.Storage.PageProvider)
	require.Equal(t, "memory", cfg.Notify.Provider)
	require.Equal(t, 72*time.Hour, cfg.TTL.TargetTTL())
	require.Equal(t, 168*time.Hour, cfg.TTL.FactTTL())
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "revloop.yaml")
	configYAML := `
server:
  port: 9191
crawler:
  user_agent: test-agent
  batch_size: 25
  fetch_concurrency: 8
ttl:
  target_hours: 24
  fact_hours: 48
storage:
  catalog_provider: postgres
  page_provider: local
  local_dir: /tmp/pages
db:
  dsn: postgres://localhost:5432/revloop
schedule:
  fetch_seconds: 60
logging:
  development: false
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, "test-agent", cfg.Crawler.UserAgent)
	require.Equal(t, 25, cfg.Crawler.BatchSize)
	require.Equal(t, 8, cfg.Crawler.FetchConcurrency)
	require.Equal(t, 24*time.Hour, cfg.TTL.TargetTTL())
	require.Equal(t, "postgres", cfg.Storage.CatalogProvider)
	require.Equal(t, "/tmp/pages", cfg.Storage.LocalDir)
	require.Equal(t, 60, cfg.Schedule.FetchSeconds)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "warn", cfg.Logging.Level)

	// Unset keys keep their defaults.
	require.Equal(t, 3600, cfg.Schedule.DiscoverSeconds)
	require.Equal(t, 8, cfg.Crawler.SweepConcurrency)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("postgres requires dsn", func(t *testing.T) {
		cfg := base()
		cfg.Storage.CatalogProvider = "postgres"
		require.ErrorContains(t, cfg.Validate(), "db.dsn")
	})

	t.Run("gcs requires bucket", func(t *testing.T) {
		cfg := base()
		cfg.Storage.PageProvider = "gcs"
		require.ErrorContains(t, cfg.Validate(), "gcs_bucket")
	})

	t.Run("local requires dir", func(t *testing.T) {
		cfg := base()
		cfg.Storage.PageProvider = "local"
		require.ErrorContains(t, cfg.Validate(), "local_dir")
	})

	t.Run("pubsub requires project", func(t *testing.T) {
		cfg := base()
		cfg.Notify.Provider = "pubsub"
		require.ErrorContains(t, cfg.Validate(), "project_id")
	})

	t.Run("unknown providers rejected", func(t *testing.T) {
		cfg := base()
		cfg.Storage.CatalogProvider = "dynamo"
		require.ErrorContains(t, cfg.Validate(), "unknown catalog provider")

		cfg = base()
		cfg.Storage.PageProvider = "s3"
		require.ErrorContains(t, cfg.Validate(), "unknown page provider")

		cfg = base()
		cfg.Notify.Provider = "kafka"
		require.ErrorContains(t, cfg.Validate(), "unknown notify provider")
	})

	t.Run("zero batch size rejected", func(t *testing.T) {
		cfg := base()
		cfg.Crawler.BatchSize = 0
		require.ErrorContains(t, cfg.Validate(), "batch_size")
	})

	t.Run("zero ttl rejected", func(t *testing.T) {
		cfg := base()
		cfg.TTL.FactHours = 0
		require.ErrorContains(t, cfg.Validate(), "ttl")
	})
}
