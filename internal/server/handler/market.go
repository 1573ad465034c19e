package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kterrell/tradegate/internal/domain"
)

// MarketService defines the methods the market handler requires from the
// service layer.
type MarketService interface {
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)
	GetPrice(ctx context.Context, symbol string) (domain.Quote, error)
}

// MarketHandler serves instrument and quote endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type listInstrumentsResponse struct {
	Instruments []domain.Instrument `json:"instruments"`
}

// ListInstruments returns the tradable instruments for the configured
// account.
// GET /api/v1/instruments
func (h *MarketHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.markets.ListInstruments(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	if instruments == nil {
		instruments = []domain.Instrument{}
	}
	writeJSON(w, http.StatusOK, listInstrumentsResponse{Instruments: instruments})
}

// GetPrice returns the current quote for a symbol, served from the Redis
// cache when fresh.
// GET /api/v1/instruments/{symbol}/price
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := pathParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	quote, err := h.markets.GetPrice(r.Context(), symbol)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
