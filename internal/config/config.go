// Package config loads relay settings from the environment.
//
// Every variable carries the FRACHTER_ prefix. A .env file in the working
// directory is read first when present; real environment variables win.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const prefix = "frachter"

// Config is the full process configuration.
type Config struct {
	Addr      string `envconfig:"ADDR" default:":8080"`
	Token     string `envconfig:"TOKEN"`
	// Read as standard base64 whenever it parses as such, else as raw
	// bytes. A raw secret made only of base64 characters is therefore
	// decoded; prefer generating it with `openssl rand -base64 32`.
	JWTSecret string `envconfig:"JWT_SECRET"`

	Env       string `envconfig:"ENV" default:"development"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT"`
	LogFile   string `envconfig:"LOG_FILE"`
	StaticDir string `envconfig:"STATIC_DIR"`

	BridgeCapacity int           `envconfig:"BRIDGE_CAPACITY" default:"1"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"10m"`
	PendingTTL     time.Duration `envconfig:"PENDING_TTL" default:"10m"`
	StatusTTL      time.Duration `envconfig:"STATUS_TTL" default:"60s"`
	MinRecheck     time.Duration `envconfig:"MIN_RECHECK" default:"1s"`
	MaxRecheck     time.Duration `envconfig:"MAX_RECHECK" default:"1s"`
	WaitTimeout    time.Duration `envconfig:"WAIT_TIMEOUT" default:"60s"`
	ReceiveTimeout time.Duration `envconfig:"RECEIVE_TIMEOUT" default:"5m"`
	SendTimeout    time.Duration `envconfig:"SEND_TIMEOUT" default:"10s"`

	// Creates per minute per client IP; 0 disables the limiter.
	CreateRateLimit int  `envconfig:"CREATE_RATE_LIMIT" default:"60"`
	SecureCookies   bool `envconfig:"SECURE_COOKIES" default:"false"`

	// Comma-separated IPs or CIDRs of reverse proxies whose X-Forwarded-For
	// is believed. Without it clients are keyed by their peer address.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	DatabaseURL        string        `envconfig:"DATABASE_URL"`
	AuditRetention     time.Duration `envconfig:"AUDIT_RETENTION" default:"720h"`
	AuditPruneInterval time.Duration `envconfig:"AUDIT_PRUNE_INTERVAL" default:"1h"`
}

// Load reads .env (if any) and the environment, then validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AuditEnabled reports whether outcomes are persisted to Postgres.
func (c Config) AuditEnabled() bool { return c.DatabaseURL != "" }

// JSONLogs reports whether logs should be emitted as JSON.
func (c Config) JSONLogs() bool {
	return c.LogFormat == "json" || (c.LogFormat == "" && c.Env == "production")
}
