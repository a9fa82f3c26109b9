// Package config loads courierd configuration from YAML files, .env files
// and COURIER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xraph/courier"
)

// Store drivers understood by courierd.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	BasePath     string        `mapstructure:"base_path"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StoreConfig selects and connects the persistence backend
type StoreConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`           // postgres/sqlite DSN or redis URL
	MaxOpenConns int    `mapstructure:"max_open_conns"` // SQL drivers only
}

// DeliveryConfig holds engine tuning. Zero values keep the engine defaults.
type DeliveryConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	LeaseDuration   time.Duration `mapstructure:"lease_duration"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Config is the courierd configuration.
type Config struct {
	Debug    bool           `mapstructure:"debug"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
}

// Load reads configFile (or searches for config.yaml when empty), layers
// environment variables on top and validates the result. A missing config
// file is fine when configFile is empty.
func Load(configFile string, envPath string) (*Config, error) {
	v := configureViper(configFile, envPath)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.base_path", "")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.max_open_conns", 10)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the store selection.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres, DriverSQLite, DriverRedis:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for driver %q", courier.ErrInvalidConfig, c.Store.Driver)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown store driver %q", courier.ErrInvalidConfig, c.Store.Driver)
	}
}

// Engine overlays the non-zero delivery settings on base.
func (c DeliveryConfig) Engine(base courier.Config) courier.Config {
	if c.Concurrency > 0 {
		base.Concurrency = c.Concurrency
	}
	if c.PollInterval > 0 {
		base.PollInterval = c.PollInterval
	}
	if c.BatchSize > 0 {
		base.BatchSize = c.BatchSize
	}
	if c.StaleAfter > 0 {
		base.StaleAfter = c.StaleAfter
	}
	if c.LeaseDuration > 0 {
		base.LeaseDuration = c.LeaseDuration
	}
	if c.MaxBackoff > 0 {
		base.MaxBackoff = c.MaxBackoff
	}
	if c.ShutdownTimeout > 0 {
		base.ShutdownTimeout = c.ShutdownTimeout
	}
	return base
}

func configureViper(configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("cmd/courierd/")
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("COURIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees env vars for keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

var envKeys = []string{
	"debug",
	"server.addr",
	"server.base_path",
	"server.read_timeout",
	"server.write_timeout",
	"server.idle_timeout",
	"store.driver",
	"store.dsn",
	"store.max_open_conns",
	"delivery.concurrency",
	"delivery.poll_interval",
	"delivery.batch_size",
	"delivery.stale_after",
	"delivery.lease_duration",
	"delivery.max_backoff",
	"delivery.shutdown_timeout",
}

// loadEnv loads .env then .env.local from envPath (default: working
// directory). Later files override earlier ones; real environment variables
// set before startup are overridden too.
func loadEnv(envPath string) {
	for _, name := range []string{".env", ".env.local"} {
		candidate := filepath.Join(envPath, name)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		_ = godotenv.Overload(candidate)
	}
}
