package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Engine     EngineConfig     `yaml:"engine"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Feeds      FeedsConfig      `yaml:"feeds"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// EngineConfig holds the bootstrap state of the state engine: the
// addresses granted each capability on startup.
type EngineConfig struct {
	Admins               []string `yaml:"admins"`
	ResourceManagers     []string `yaml:"resource_managers"`
	MaintenanceApprovers []string `yaml:"maintenance_approvers"`
	DeviceManagers       []string `yaml:"device_managers"`
}

// OracleConfig seeds the oracle set and integration singletons.
type OracleConfig struct {
	Quorum                int   `yaml:"quorum"`
	UpdateIntervalSeconds int64 `yaml:"update_interval_seconds"`
	Tolerance             int64 `yaml:"tolerance"`
	CanonicalDecimals     int   `yaml:"canonical_decimals"`
}

// FeedsConfig holds the price-feed poller configuration.
type FeedsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	HTTPProxy       string        `yaml:"http_proxy"`
	Sources         []FeedSource  `yaml:"sources"`
}

// FeedSource defines one external price endpoint.
type FeedSource struct {
	Name       string            `yaml:"name"`
	URL        string            `yaml:"url"`
	Headers    map[string]string `yaml:"headers"`
	PriceField string            `yaml:"price_field"`
	Decimals   int               `yaml:"decimals"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Feeds.IntervalSeconds <= 0 {
		cfg.Feeds.IntervalSeconds = 60
	}
	cfg.Feeds.Interval = time.Duration(cfg.Feeds.IntervalSeconds) * time.Second

	if cfg.Oracle.Quorum <= 0 {
		cfg.Oracle.Quorum = 1
	}
	if cfg.Oracle.UpdateIntervalSeconds <= 0 {
		cfg.Oracle.UpdateIntervalSeconds = 300
	}
	if cfg.Oracle.CanonicalDecimals <= 0 {
		cfg.Oracle.CanonicalDecimals = 8
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
