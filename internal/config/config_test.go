package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLiveConfig() Config {
	cfg := Defaults()
	cfg.Broker.Username = "trader@example.com"
	cfg.Broker.Password = "hunter2"
	cfg.Broker.Server = "OSP-DEMO"
	cfg.Broker.AccountID = 12345
	cfg.Broker.AccountNum = "1"
	return cfg
}

func TestValidateAcceptsLiveDefaultsWithCredentials(t *testing.T) {
	cfg := validLiveConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidatePaperModeNeedsNoCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "paper"
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "server: port")
}

func TestValidateLiveModeRequiresBrokerCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker: username")
	assert.Contains(t, err.Error(), "broker: either password or encrypted_password_path")
	assert.Contains(t, err.Error(), "broker: server")
	assert.Contains(t, err.Error(), "broker: account_id")
}

func TestValidateS3OnlyCheckedWhenEnabled(t *testing.T) {
	cfg := validLiveConfig()
	cfg.S3.Enabled = false
	cfg.S3.Bucket = ""
	require.NoError(t, cfg.Validate())

	cfg.S3.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "paper"
log_level = "debug"

[server]
port = 9001

[broker]
environment = "demo"
submit_timeout = "5s"

[archive]
interval = "12h"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Broker.SubmitTimeout.Duration)
	assert.Equal(t, 12*time.Hour, cfg.Archive.Interval.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Postgres.RunMigrations)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "paper"`), 0o600))

	t.Setenv("TRADEGATE_BROKER_PASSWORD", "from-env")
	t.Setenv("TRADEGATE_BROKER_ACCOUNT_ID", "99")
	t.Setenv("TRADEGATE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRADEGATE_MODE", "live")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Broker.Password)
	assert.Equal(t, int64(99), cfg.Broker.AccountID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "live", cfg.Mode)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validLiveConfig()
	cfg.Postgres.Password = "pgpass"
	cfg.Redis.Password = "redispass"
	cfg.S3.SecretKey = "s3secret"
	cfg.Server.APIKey = "apikey"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Broker.Password)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Originals are untouched.
	assert.Equal(t, "hunter2", cfg.Broker.Password)
	// Non-secrets pass through.
	assert.Equal(t, cfg.Broker.Username, red.Broker.Username)
}
