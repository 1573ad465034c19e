package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEGATE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEGATE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Broker ──
	setStr(&cfg.Broker.Environment, "TRADEGATE_BROKER_ENVIRONMENT")
	setStr(&cfg.Broker.BaseURL, "TRADEGATE_BROKER_BASE_URL")
	setStr(&cfg.Broker.Username, "TRADEGATE_BROKER_USERNAME")
	setStr(&cfg.Broker.Password, "TRADEGATE_BROKER_PASSWORD")
	setStr(&cfg.Broker.EncryptedPasswordPath, "TRADEGATE_BROKER_ENCRYPTED_PASSWORD_PATH")
	setStr(&cfg.Broker.Server, "TRADEGATE_BROKER_SERVER")
	setInt64(&cfg.Broker.AccountID, "TRADEGATE_BROKER_ACCOUNT_ID")
	setStr(&cfg.Broker.AccountNum, "TRADEGATE_BROKER_ACC_NUM")
	setDuration(&cfg.Broker.SubmitTimeout, "TRADEGATE_BROKER_SUBMIT_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEGATE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEGATE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEGATE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEGATE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEGATE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEGATE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEGATE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEGATE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEGATE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEGATE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEGATE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEGATE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEGATE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEGATE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEGATE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEGATE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRADEGATE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADEGATE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEGATE_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEGATE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEGATE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEGATE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEGATE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEGATE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "TRADEGATE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "TRADEGATE_ARCHIVE_INTERVAL")

	// ── Server ──
	setInt(&cfg.Server.Port, "TRADEGATE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEGATE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRADEGATE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TRADEGATE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TRADEGATE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEGATE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEGATE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEGATE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEGATE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEGATE_MODE")
	setStr(&cfg.LogLevel, "TRADEGATE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
