// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	TTL      TTLConfig      `mapstructure:"ttl"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the read API HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Addr returns the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// CrawlerConfig governs fetch pipeline behavior.
type CrawlerConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	DelayMillis      int    `mapstructure:"delay_millis"`
	BatchSize        int    `mapstructure:"batch_size"`
	FetchConcurrency int    `mapstructure:"fetch_concurrency"`
	SweepConcurrency int    `mapstructure:"sweep_concurrency"`
}

// Delay returns the per-domain politeness delay between requests.
func (c CrawlerConfig) Delay() time.Duration {
	return time.Duration(c.DelayMillis) * time.Millisecond
}

// TTLConfig sets row expiry windows for the catalog.
type TTLConfig struct {
	TargetHours int `mapstructure:"target_hours"`
	FactHours   int `mapstructure:"fact_hours"`
}

// TargetTTL returns the crawl target expiry window.
func (c TTLConfig) TargetTTL() time.Duration {
	return time.Duration(c.TargetHours) * time.Hour
}

// FactTTL returns the fact expiry window.
func (c TTLConfig) FactTTL() time.Duration {
	return time.Duration(c.FactHours) * time.Hour
}

// StorageConfig selects catalog and page store providers.
type StorageConfig struct {
	CatalogProvider string `mapstructure:"catalog_provider"`
	PageProvider    string `mapstructure:"page_provider"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	LocalDir        string `mapstructure:"local_dir"`
	ContentType     string `mapstructure:"content_type"`
}

// DBConfig controls access to Postgres when the catalog provider is
// "postgres".
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// NotifyConfig selects the change-notification transport.
type NotifyConfig struct {
	Provider   string `mapstructure:"provider"`
	ProjectID  string `mapstructure:"project_id"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// ScheduleConfig sets the intervals for the run mode's tickers.
type ScheduleConfig struct {
	DiscoverSeconds int `mapstructure:"discover_seconds"`
	FetchSeconds    int `mapstructure:"fetch_seconds"`
	SweepSeconds    int `mapstructure:"sweep_seconds"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REVLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.user_agent", "revloop-bot/0.1")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.delay_millis", 250)
	v.SetDefault("crawler.batch_size", 10)
	v.SetDefault("crawler.fetch_concurrency", 4)
	v.SetDefault("crawler.sweep_concurrency", 8)
	v.SetDefault("ttl.target_hours", 72)
	v.SetDefault("ttl.fact_hours", 168)
	v.SetDefault("storage.catalog_provider", "memory")
	v.SetDefault("storage.page_provider", "memory")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("notify.provider", "memory")
	v.SetDefault("notify.buffer_size", 256)
	v.SetDefault("schedule.discover_seconds", 3600)
	v.SetDefault("schedule.fetch_seconds", 300)
	v.SetDefault("schedule.sweep_seconds", 86400)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.FetchConcurrency <= 0 {
		return fmt.Errorf("crawler.fetch_concurrency must be > 0")
	}
	if c.TTL.TargetHours <= 0 || c.TTL.FactHours <= 0 {
		return fmt.Errorf("ttl windows must be > 0")
	}
	switch c.Storage.CatalogProvider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when storage.catalog_provider is postgres")
		}
	default:
		return fmt.Errorf("unknown catalog provider: %s", c.Storage.CatalogProvider)
	}
	switch c.Storage.PageProvider {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set when storage.page_provider is local")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.page_provider is gcs")
		}
	default:
		return fmt.Errorf("unknown page provider: %s", c.Storage.PageProvider)
	}
	switch c.Notify.Provider {
	case "memory":
	case "pubsub":
		if c.Notify.ProjectID == "" {
			return fmt.Errorf("notify.project_id must be set when notify.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown notify provider: %s", c.Notify.Provider)
	}
	return nil
}
