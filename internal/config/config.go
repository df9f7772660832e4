// Package config loads the coordination daemon's configuration from
// environment variables (primary source, per SPEC_FULL.md §6.5) and an
// optional TOML file, using github.com/spf13/viper the way the
// teacher's cmd/bd/config.go and internal/labelmutex/policy.go load theirs.
// A fsnotify-backed watch lets the rate-limit and circuit-breaker defaults
// be hot-reloaded without restarting the daemon.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the fully-resolved, typed configuration for the daemon.
type Config struct {
	// Store is the shared key-value store (Redis) connection.
	StoreAddr     string `mapstructure:"store_addr"`
	StorePassword string `mapstructure:"store_password"`
	StoreDB       int    `mapstructure:"store_db"`

	// Sink is the relational archival store (Postgres).
	SinkDSN string `mapstructure:"sink_dsn"`

	// Sampling is the LLM sampling provider endpoint/config.
	SamplingEndpoint   string        `mapstructure:"sampling_endpoint"`
	SamplingAPIKey     string        `mapstructure:"sampling_api_key"`
	SamplingTimeout    time.Duration `mapstructure:"sampling_timeout"`
	SamplingMaxRetries int           `mapstructure:"sampling_max_retries"`

	// NATS is the optional embedded JetStream fan-out.
	NATSEnabled  bool   `mapstructure:"nats_enabled"`
	NATSPort     int    `mapstructure:"nats_port"`
	NATSStoreDir string `mapstructure:"nats_store_dir"`

	// RPC surface.
	HTTPAddr string `mapstructure:"http_addr"`

	// Lifecycle tuning.
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	DefaultRateLimit  int           `mapstructure:"default_rate_limit"`
	DefaultRateBurst  int           `mapstructure:"default_rate_burst"`
	LongPollTimeout   time.Duration `mapstructure:"long_poll_timeout"`
	RequestDeadline   time.Duration `mapstructure:"request_deadline"`

	LogLevel string `mapstructure:"log_level"`

	// FlushToken guards system.flush from accidental invocation.
	FlushToken string `mapstructure:"flush_all_data_token"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("store_addr", "127.0.0.1:6379")
	v.SetDefault("store_db", 0)
	v.SetDefault("sink_dsn", "")
	v.SetDefault("sampling_endpoint", "http://127.0.0.1:8089")
	v.SetDefault("sampling_timeout", 30*time.Second)
	v.SetDefault("sampling_max_retries", 3)
	v.SetDefault("nats_enabled", false)
	v.SetDefault("nats_port", 4222)
	v.SetDefault("nats_store_dir", "./.runtime/nats")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("heartbeat_timeout", 15*time.Second)
	v.SetDefault("sweep_interval", 3*time.Second)
	v.SetDefault("default_rate_limit", 50)
	v.SetDefault("default_rate_burst", 100)
	v.SetDefault("long_poll_timeout", 30*time.Second)
	v.SetDefault("request_deadline", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("flush_all_data_token", "")
}

// Load reads configuration from environment variables prefixed SWARMD_ and,
// if present, from configFile (TOML). Environment variables always take
// precedence over file values, matching the precedence the teacher applies
// to ANTHROPIC_API_KEY over an explicit argument in internal/compact/haiku.go.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("SWARMD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Watcher wraps a viper instance with fsnotify-driven hot reload of a
// narrow set of tunables (rate limit defaults, circuit breaker thresholds)
// without requiring a daemon restart, per SPEC_FULL.md §2.
type Watcher struct {
	v        *viper.Viper
	onChange func(*Config)
}

// WatchFile starts watching configFile for changes and invokes onChange
// with the freshly reloaded Config whenever it changes on disk.
func WatchFile(configFile string, onChange func(*Config)) (*Watcher, error) {
	v := viper.New()
	defaults(v)
	v.SetConfigFile(configFile)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
	}

	w := &Watcher{v: v, onChange: onChange}
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		if w.onChange != nil {
			w.onChange(&cfg)
		}
	})
	v.WatchConfig()
	return w, nil
}
