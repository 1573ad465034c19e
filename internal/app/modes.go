package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kterrell/tradegate/internal/crypto"
	"github.com/kterrell/tradegate/internal/domain"
	"github.com/kterrell/tradegate/internal/notify"
	"github.com/kterrell/tradegate/internal/platform/paper"
	"github.com/kterrell/tradegate/internal/platform/tradelocker"
	"github.com/kterrell/tradegate/internal/server"
	"github.com/kterrell/tradegate/internal/server/handler"
	"github.com/kterrell/tradegate/internal/server/ws"
	"github.com/kterrell/tradegate/internal/service"
)

const (
	// shutdownGrace bounds how long in-flight HTTP requests may run after
	// the context is cancelled.
	shutdownGrace = 10 * time.Second

	// positionSyncInterval is how often local position snapshots are
	// reconciled against the broker in the background.
	positionSyncInterval = 30 * time.Second

	// paperStartingBalance funds the simulated account in paper mode.
	paperStartingBalance = 100_000
)

// paperSeedPrices gives the simulated broker an initial quote surface so
// market orders fill immediately after startup.
var paperSeedPrices = map[string]float64{
	"BTCUSD": 65000,
	"ETHUSD": 3200,
	"EURUSD": 1.09,
	"XAUUSD": 2350,
}

// LiveMode connects to TradeLocker and serves the gateway against the real
// broker session.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	password, err := crypto.LoadSecret(crypto.SecretConfig{
		Plaintext:      a.cfg.Broker.Password,
		EncryptedPath:  a.cfg.Broker.EncryptedPasswordPath,
		MasterPassword: os.Getenv("TRADEGATE_MASTER_PASSWORD"),
	})
	if err != nil {
		return fmt.Errorf("app: load broker password: %w", err)
	}

	broker := tradelocker.NewClient(tradelocker.Config{
		Environment: a.cfg.Broker.Environment,
		BaseURL:     a.cfg.Broker.BaseURL,
		Username:    a.cfg.Broker.Username,
		Password:    password,
		Server:      a.cfg.Broker.Server,
		AccountID:   strconv.FormatInt(a.cfg.Broker.AccountID, 10),
		AccountNum:  a.cfg.Broker.AccountNum,
	}, a.logger)

	if err := broker.Connect(ctx); err != nil {
		return fmt.Errorf("app: broker connect: %w", err)
	}
	a.closers = append(a.closers, func() { _ = broker.Close() })

	return a.serve(ctx, deps, broker)
}

// PaperMode serves the gateway against an in-process simulated broker. No
// broker credentials are required.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	broker := paper.NewBroker(paperSeedPrices, paperStartingBalance, a.logger)
	return a.serve(ctx, deps, broker)
}

// serve builds the service and handler layers over the given broker and runs
// the HTTP server, WebSocket hub, notification watcher, position sync loop,
// and archival loop until the context is cancelled.
func (a *App) serve(ctx context.Context, deps *Dependencies, broker domain.BrokerGateway) error {
	logger := a.logger

	validator := service.NewValidator()
	resolver := service.NewResolver(broker, deps.Quotes, logger)
	orderSvc := service.NewOrderService(
		deps.Orders, deps.Audit, deps.Limiter, deps.Bus,
		broker, validator, resolver, logger,
	).WithSubmitTimeout(a.cfg.Broker.SubmitTimeout.Duration)
	positionSvc := service.NewPositionService(
		deps.Positions, deps.Orders, deps.Locks, deps.Bus,
		broker, orderSvc, logger,
	)
	marketSvc := service.NewMarketService(broker, deps.Quotes, logger)
	accountSvc := service.NewAccountService(broker, logger)

	components := map[string]handler.Pinger{
		"postgres": handler.PingFunc(func(ctx context.Context) error {
			return deps.Postgres.Pool().Ping(ctx)
		}),
		"redis": handler.PingFunc(deps.Redis.Ping),
		"broker": handler.PingFunc(func(ctx context.Context) error {
			_, err := broker.Info(ctx)
			return err
		}),
	}
	if deps.Blob != nil {
		components["s3"] = handler.PingFunc(deps.Blob.Health)
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(components, logger),
		Orders:    handler.NewOrderHandler(orderSvc, logger),
		Positions: handler.NewPositionHandler(positionSvc, logger),
		Markets:   handler.NewMarketHandler(marketSvc, logger),
		Accounts:  handler.NewAccountHandler(accountSvc, logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, logger)
	}

	hub := ws.NewHub(deps.Bus, logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now(),
	})

	watcher := notify.NewWatcher(deps.Bus, deps.Notifier, logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.Limiter, logger)

	// Seed local position snapshots before accepting traffic. A failure
	// here is logged, not fatal: the broker may be briefly unreachable.
	if _, err := positionSvc.Sync(ctx); err != nil {
		logger.WarnContext(ctx, "initial position sync failed",
			slog.String("error", err.Error()),
		)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("app: notify watcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.runPositionSync(ctx, positionSvc)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchival(ctx, deps.Archiver)
		})
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runPositionSync periodically reconciles local position snapshots with the
// broker. Sync failures are logged and retried on the next tick.
func (a *App) runPositionSync(ctx context.Context, positions *service.PositionService) error {
	ticker := time.NewTicker(positionSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := positions.Sync(ctx); err != nil {
				a.logger.WarnContext(ctx, "position sync failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// runArchival periodically copies records older than the retention window to
// cold storage. Rows are not deleted from the primary store; the archive is
// an append-only copy.
func (a *App) runArchival(ctx context.Context, archiver domain.Archiver) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

			if n, err := archiver.ArchiveOrders(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "order archival failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "orders archived",
					slog.Int64("count", n),
					slog.Time("cutoff", cutoff),
				)
			}

			if n, err := archiver.ArchiveAudit(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "audit archival failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "audit entries archived",
					slog.Int64("count", n),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}
