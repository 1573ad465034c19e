package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/kterrell/tradegate/internal/blob/s3"
	"github.com/kterrell/tradegate/internal/cache/redis"
	"github.com/kterrell/tradegate/internal/config"
	"github.com/kterrell/tradegate/internal/domain"
	"github.com/kterrell/tradegate/internal/notify"
	"github.com/kterrell/tradegate/internal/store/postgres"
)

// Dependencies aggregates every wired component. Fields that depend on
// optional infrastructure (S3) are nil when that infrastructure is disabled.
type Dependencies struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	Blob     *s3blob.Client

	Orders    domain.OrderStore
	Positions domain.PositionStore
	Audit     domain.AuditStore

	Quotes  domain.QuoteCache
	Limiter domain.RateLimiter
	Locks   domain.LockManager
	Bus     domain.SignalBus

	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	Notifier *notify.Notifier
}

// Wire builds the full dependency graph from configuration. It returns the
// dependencies plus a cleanup function that closes every opened resource in
// reverse order. On error, everything opened so far is already closed.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default().With(slog.String("component", "wire"))

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pg.Close)

	if cfg.Postgres.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: migrations: %w", err)
		}
	}

	rdb, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = rdb.Close() })

	orders := postgres.NewOrderStore(pg.Pool())
	positions := postgres.NewPositionStore(pg.Pool())
	audit := postgres.NewAuditStore(pg.Pool())

	deps := &Dependencies{
		Postgres:  pg,
		Redis:     rdb,
		Orders:    orders,
		Positions: positions,
		Audit:     audit,
		Quotes:    redis.NewQuoteCache(rdb),
		Limiter:   redis.NewRateLimiter(rdb),
		Locks:     redis.NewLockManager(rdb),
		Bus:       redis.NewSignalBus(rdb),
	}

	if cfg.S3.Enabled {
		blob, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = blob.Close() })

		deps.Blob = blob
		deps.BlobWriter = s3blob.NewWriter(blob)
		deps.BlobReader = s3blob.NewReader(blob)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, orders, audit, audit)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, slog.Default())

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("s3_enabled", cfg.S3.Enabled),
		slog.Int("notify_senders", len(senders)),
	)

	return deps, cleanup, nil
}
