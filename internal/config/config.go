// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Enricher  EnricherConfig  `mapstructure:"enricher"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Maps      MapsConfig      `mapstructure:"maps"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Run       RunConfig       `mapstructure:"run"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures outbound HTTP fetches.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the Chrome launcher.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	ExecPath      string `mapstructure:"exec_path"`
	NoSandbox     bool   `mapstructure:"no_sandbox"`
}

// RateLimitConfig holds the per-host buckets and the per-pass gate.
type RateLimitConfig struct {
	HostRPS          float64 `mapstructure:"host_rps"`
	HostBurst        int     `mapstructure:"host_burst"`
	GateEverySeconds int     `mapstructure:"gate_every_seconds"`
	GateBurst        int     `mapstructure:"gate_burst"`
}

// AnalyzerConfig tunes website analysis.
type AnalyzerConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	BatchPauseMs   int `mapstructure:"batch_pause_ms"`
	GoodThreshold  int `mapstructure:"good_threshold"`
}

// EnricherConfig tunes description enrichment.
type EnricherConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxChars       int `mapstructure:"max_chars"`
	MinChars       int `mapstructure:"min_chars"`
}

// JobsConfig tunes job aggregation.
type JobsConfig struct {
	MaxPasses         int `mapstructure:"max_passes"`
	WindowDays        int `mapstructure:"window_days"`
	PersistBatch      int `mapstructure:"persist_batch"`
	DefaultMaxResults int `mapstructure:"default_max_results"`
}

// MapsConfig tunes the business crawler.
type MapsConfig struct {
	MaxScrolls        int    `mapstructure:"max_scrolls"`
	DefaultMaxResults int    `mapstructure:"default_max_results"`
	SearchURL         string `mapstructure:"search_url"`
}

// DBConfig selects and tunes the repository backend.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// StorageConfig selects where analyzer snapshots go.
type StorageConfig struct {
	SnapshotBackend string `mapstructure:"snapshot_backend"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	BaseDir         string `mapstructure:"base_dir"`
	Prefix          string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RunConfig bounds a single discovery run.
type RunConfig struct {
	BudgetSeconds int `mapstructure:"budget_seconds"`
}

// DefaultUserAgent identifies outbound fetches unless http.user_agent is set.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Load builds a Config from disk/environment. With an empty path it looks
// for prospector.{yaml,json,toml} in the working directory, /etc/prospector
// and $HOME/.prospector, and carries on with defaults when none exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("prospector")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/prospector/")
		v.AddConfigPath("$HOME/.prospector")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.max_body_bytes", 5<<20)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("ratelimit.host_rps", 1.0)
	v.SetDefault("ratelimit.host_burst", 2)
	v.SetDefault("ratelimit.gate_every_seconds", 10)
	v.SetDefault("ratelimit.gate_burst", 3)
	v.SetDefault("analyzer.concurrency", 5)
	v.SetDefault("analyzer.timeout_seconds", 8)
	v.SetDefault("analyzer.batch_pause_ms", 500)
	v.SetDefault("analyzer.good_threshold", 25)
	v.SetDefault("enricher.concurrency", 3)
	v.SetDefault("enricher.timeout_seconds", 20)
	v.SetDefault("enricher.max_chars", 5000)
	v.SetDefault("enricher.min_chars", 50)
	v.SetDefault("jobs.max_passes", 3)
	v.SetDefault("jobs.window_days", 30)
	v.SetDefault("jobs.persist_batch", 25)
	v.SetDefault("jobs.default_max_results", 50)
	v.SetDefault("maps.max_scrolls", 20)
	v.SetDefault("maps.default_max_results", 20)
	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.migrate", true)
	v.SetDefault("storage.snapshot_backend", "none")
	v.SetDefault("storage.prefix", "prospector")
	v.SetDefault("pubsub.topic_name", "prospector-runs")
	v.SetDefault("run.budget_seconds", 300)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Analyzer.Concurrency <= 0 {
		return fmt.Errorf("analyzer.concurrency must be > 0")
	}
	if c.Analyzer.GoodThreshold < 0 || c.Analyzer.GoodThreshold > 100 {
		return fmt.Errorf("analyzer.good_threshold must be within 0..100")
	}
	if c.Enricher.Concurrency <= 0 {
		return fmt.Errorf("enricher.concurrency must be > 0")
	}
	if c.Jobs.MaxPasses <= 0 {
		return fmt.Errorf("jobs.max_passes must be > 0")
	}
	if c.Jobs.PersistBatch <= 0 {
		return fmt.Errorf("jobs.persist_batch must be > 0")
	}
	switch c.DB.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for driver %s", c.DB.Driver)
		}
	default:
		return fmt.Errorf("db.driver must be one of memory, postgres, sqlite")
	}
	switch c.Storage.SnapshotBackend {
	case "none", "", "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.snapshot_backend must be one of none, memory, local, gcs")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Run.BudgetSeconds <= 0 {
		return fmt.Errorf("run.budget_seconds must be > 0")
	}
	return nil
}

// RunBudget is the wall-clock budget of one discovery run.
func (c Config) RunBudget() time.Duration {
	return time.Duration(c.Run.BudgetSeconds) * time.Second
}

// HTTPTimeout is the per-request timeout of outbound fetches.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// SeedWindow is how far back persisted job URLs seed deduplication.
func (c Config) SeedWindow() time.Duration {
	return time.Duration(c.Jobs.WindowDays) * 24 * time.Hour
}
