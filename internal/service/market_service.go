package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kterrell/tradegate/internal/domain"
)

// MarketService serves instrument metadata and quotes. Quotes are cached in
// Redis with a short TTL so repeated lookups do not hammer the broker.
type MarketService struct {
	broker domain.BrokerGateway
	quotes domain.QuoteCache
	logger *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(broker domain.BrokerGateway, quotes domain.QuoteCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		broker: broker,
		quotes: quotes,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// ListInstruments returns the broker's tradeable instruments.
func (s *MarketService) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	instruments, err := fetchRetry(ctx, s.broker.FetchInstruments)
	if err != nil {
		return nil, fmt.Errorf("market_service: list instruments: %w", err)
	}
	return instruments, nil
}

// GetPrice returns the latest quote for a symbol, serving from cache when
// fresh and falling back to the broker.
func (s *MarketService) GetPrice(ctx context.Context, symbol string) (domain.Quote, error) {
	if s.quotes != nil {
		q, err := s.quotes.GetQuote(ctx, symbol)
		if err == nil && time.Since(q.At) <= quoteMaxAge {
			return q, nil
		}
	}

	q, err := fetchRetry(ctx, func(ctx context.Context) (domain.Quote, error) {
		return s.broker.FetchPrice(ctx, symbol)
	})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("market_service: quote %q: %w", symbol, err)
	}

	if s.quotes != nil {
		if cacheErr := s.quotes.SetQuote(ctx, q); cacheErr != nil {
			s.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return q, nil
}
