// Package config loads runtime settings from an optional .env file and
// the process environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. DM_HTTP_ADDR.
// The unprefixed name (HTTP_ADDR) is honoured as a fallback.
const Prefix = "dm"

// Store backends.
const (
	StoreMemory    = "memory"
	StoreJetStream = "jetstream"
)

// Directory drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTPAddr        string        `envconfig:"http_addr" default:":3000"`
	ShutdownTimeout time.Duration `envconfig:"shutdown_timeout" default:"30s"`
	LogLevel        string        `envconfig:"log_level" default:"info"`

	StoreBackend string `envconfig:"store_backend" default:"memory"`
	NATSURL      string `envconfig:"nats_url" default:"nats://localhost:4222"`
	KVBucket     string `envconfig:"kv_bucket" default:"dm"`

	PresenceHeartbeatInterval time.Duration `envconfig:"presence_heartbeat_interval" default:"30s"`
	PresenceStaleAfter        time.Duration `envconfig:"presence_stale_after" default:"60s"`

	DirectoryDriver     string        `envconfig:"directory_driver" default:"sqlite"`
	DirectoryDSN        string        `envconfig:"directory_dsn" default:"directory.db"`
	RedisAddr           string        `envconfig:"redis_addr"`
	RedisPassword       string        `envconfig:"redis_password"`
	DisplayNameCacheTTL time.Duration `envconfig:"display_name_cache_ttl" default:"10m"`

	SendRateLimit  int           `envconfig:"send_rate_limit" default:"30"`
	SendRateWindow time.Duration `envconfig:"send_rate_window" default:"1m"`

	JWTSecret          string `envconfig:"jwt_secret"`
	JWTIssuer          string `envconfig:"jwt_issuer" default:"campusmesh"`
	CORSAllowedOrigins string `envconfig:"cors_allowed_origins" default:"http://localhost:3000,http://localhost:8080"`
}

// Load reads ./.env when present and then the environment.
func Load() (*Config, error) {
	if os.Getenv("DM_ENV") != "production" {
		if err := godotenv.Load("./.env"); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	if err := envconfig.Process(Prefix, c); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case StoreMemory:
	case StoreJetStream:
		if c.NATSURL == "" {
			errs = append(errs, errors.New("NATS_URL is required for the jetstream store"))
		}
		if c.KVBucket == "" {
			errs = append(errs, errors.New("KV_BUCKET is required for the jetstream store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.DirectoryDriver {
	case DriverSQLite, DriverPostgres:
		if c.DirectoryDSN == "" {
			errs = append(errs, errors.New("DIRECTORY_DSN is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DIRECTORY_DRIVER %q", c.DirectoryDriver))
	}

	if c.PresenceHeartbeatInterval <= 0 {
		errs = append(errs, errors.New("PRESENCE_HEARTBEAT_INTERVAL must be positive"))
	}
	if c.PresenceStaleAfter < c.PresenceHeartbeatInterval {
		errs = append(errs, errors.New("PRESENCE_STALE_AFTER must not be shorter than the heartbeat interval"))
	}
	if c.SendRateLimit <= 0 || c.SendRateWindow <= 0 {
		errs = append(errs, errors.New("SEND_RATE_LIMIT and SEND_RATE_WINDOW must be positive"))
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}

	switch strings.ToLower(c.LogLevel) {
	case "info", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported LOG_LEVEL %q (info, error)", c.LogLevel))
	}

	return errors.Join(errs...)
}

// RateLimitEnabled reports whether send throttling has a backend.
func (c *Config) RateLimitEnabled() bool {
	return c.RedisAddr != ""
}
