// Package config defines the top-level configuration for the order gateway
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRADEGATE_* environment
// variables.
type Config struct {
	Broker   BrokerConfig   `toml:"broker"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BrokerConfig holds TradeLocker connection parameters and credentials.
type BrokerConfig struct {
	// Environment selects the broker endpoint: "demo" or "live".
	Environment string `toml:"environment"`

	// BaseURL overrides the endpoint derived from Environment. Rarely
	// needed outside tests.
	BaseURL string `toml:"base_url"`

	Username string `toml:"username"`
	Password string `toml:"password"`

	// EncryptedPasswordPath points to a JSON envelope holding the broker
	// password encrypted at rest. When set, the password is decrypted at
	// startup with TRADEGATE_MASTER_PASSWORD and Password is ignored.
	EncryptedPasswordPath string `toml:"encrypted_password_path"`

	// Server is the broker-side server name tied to the credentials.
	Server string `toml:"server"`

	AccountID  int64  `toml:"account_id"`
	AccountNum string `toml:"acc_num"`

	// SubmitTimeout bounds a single order submission round trip. On expiry
	// the outcome is reported as indeterminate; the order is never
	// resubmitted automatically.
	SubmitTimeout duration `toml:"submit_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the cold-storage archival loop.
type ArchiveConfig struct {
	// RetentionDays is how long records stay in the primary store before
	// being archived to S3.
	RetentionDays int `toml:"retention_days"`

	// Interval is how often the archival loop runs.
	Interval duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// APIKey protects mutating endpoints and account details. Empty
	// disables authentication (dev mode).
	APIKey string `toml:"api_key"`

	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// the inbound limiter.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			Environment:   "demo",
			SubmitTimeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradegate",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradegate-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   50,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "order_rejected", "position_closed", "error"},
		},
		Mode:     "live",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. "live" routes
// orders to TradeLocker; "paper" uses the in-process simulated broker.
var validModes = map[string]bool{
	"live":  true,
	"paper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validEnvironments enumerates the accepted broker environments.
var validEnvironments = map[string]bool{
	"demo": true,
	"live": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Broker — credentials are only required in live mode.
	if mode == "live" {
		if !validEnvironments[strings.ToLower(c.Broker.Environment)] {
			errs = append(errs, fmt.Sprintf("broker: unknown environment %q (valid: demo, live)", c.Broker.Environment))
		}
		if c.Broker.Username == "" {
			errs = append(errs, "broker: username must not be empty in live mode")
		}
		if c.Broker.Password == "" && c.Broker.EncryptedPasswordPath == "" {
			errs = append(errs, "broker: either password or encrypted_password_path must be set in live mode")
		}
		if c.Broker.Server == "" {
			errs = append(errs, "broker: server must not be empty in live mode")
		}
		if c.Broker.AccountID <= 0 {
			errs = append(errs, "broker: account_id must be positive in live mode")
		}
		if c.Broker.AccountNum == "" {
			errs = append(errs, "broker: acc_num must not be empty in live mode")
		}
	}
	if c.Broker.SubmitTimeout.Duration <= 0 {
		errs = append(errs, "broker: submit_timeout must be positive")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only checked when the archive is enabled.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
