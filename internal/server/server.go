// Package server exposes the gateway's HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kterrell/tradegate/internal/domain"
	"github.com/kterrell/tradegate/internal/server/handler"
	"github.com/kterrell/tradegate/internal/server/middleware"
	"github.com/kterrell/tradegate/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// the inbound limiter.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Orders    *handler.OrderHandler
	Positions *handler.PositionHandler
	Markets   *handler.MarketHandler
	Accounts  *handler.AccountHandler
	Archives  *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API for the order gateway.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. Middleware order is
// CORS, then request logging, then the IP rate limit, then API-key auth on
// protected endpoints.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/v1/health", handlers.Health.HealthCheck)

	// Orders.
	mux.HandleFunc("GET /api/v1/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/v1/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/v1/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/v1/orders/{id}", handlers.Orders.CancelOrder)

	// Positions. Closing is modelled as DELETE even though the row is
	// retained; the resource being deleted is the exposure.
	mux.HandleFunc("GET /api/v1/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/v1/positions/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("DELETE /api/v1/positions/{id}", handlers.Positions.ClosePosition)
	mux.HandleFunc("POST /api/v1/positions/sync", handlers.Positions.SyncPositions)

	// Market data.
	mux.HandleFunc("GET /api/v1/instruments", handlers.Markets.ListInstruments)
	mux.HandleFunc("GET /api/v1/instruments/{symbol}/price", handlers.Markets.GetPrice)

	// Accounts and broker metadata.
	mux.HandleFunc("GET /api/v1/accounts", handlers.Accounts.ListAccounts)
	mux.HandleFunc("GET /api/v1/accounts/details", handlers.Accounts.AccountDetails)
	mux.HandleFunc("GET /api/v1/broker", handlers.Accounts.BrokerInfo)

	// Cold-storage archives.
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/v1/archives", handlers.Archives.ListArchives)
		mux.HandleFunc("GET /api/v1/archives/{path...}", handlers.Archives.GetArchive)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
