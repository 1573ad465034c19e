package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kterrell/tradegate/internal/domain"
)

// Resolver converts offset stop-loss and take-profit specifications into
// absolute broker price levels against the current quote. Trailing stops are
// not precomputed: the broker tracks the favourable high/low, so the resolver
// only carries the offset through as a trailing-stop marker.
type Resolver struct {
	broker domain.BrokerGateway
	quotes domain.QuoteCache
	logger *slog.Logger
}

// NewResolver creates a Resolver. quotes may be nil, in which case every
// resolution that needs a reference price hits the broker directly.
func NewResolver(broker domain.BrokerGateway, quotes domain.QuoteCache, logger *slog.Logger) *Resolver {
	return &Resolver{
		broker: broker,
		quotes: quotes,
		logger: logger.With(slog.String("component", "resolver")),
	}
}

// quoteMaxAge bounds how stale a cached quote may be before the resolver
// refetches from the broker. Orders must never resolve against stale prices.
const quoteMaxAge = 5 * time.Second

// Resolve returns the resolved order for a validated request. Resolution is
// deterministic: identical requests against an identical reference price
// produce an identical result.
func (r *Resolver) Resolve(ctx context.Context, req domain.OrderRequest) (domain.ResolvedOrder, error) {
	out := domain.ResolvedOrder{Request: req}

	needsQuote := (req.StopLoss != 0 && req.StopLossType == domain.StopLossOffset) ||
		(req.TakeProfit != 0 && req.TakeProfitType == domain.TakeProfitOffset)

	var ref float64
	if needsQuote {
		price, err := r.referencePrice(ctx, req)
		if err != nil {
			return domain.ResolvedOrder{}, err
		}
		ref = price
		out.ReferencePrice = ref
	}

	if req.StopLoss != 0 {
		switch req.StopLossType {
		case domain.StopLossAbsolute:
			out.StopLossPrice = req.StopLoss
		case domain.StopLossOffset:
			// A buy's protective stop sits below entry; a sell's above.
			if req.Side == domain.SideBuy {
				out.StopLossPrice = ref - req.StopLoss
			} else {
				out.StopLossPrice = ref + req.StopLoss
			}
		case domain.StopLossTrailing:
			out.TrailingOffset = req.StopLoss
		}
	}

	if req.TakeProfit != 0 {
		switch req.TakeProfitType {
		case domain.TakeProfitAbsolute:
			out.TakeProfitPrice = req.TakeProfit
		case domain.TakeProfitOffset:
			if req.Side == domain.SideBuy {
				out.TakeProfitPrice = ref + req.TakeProfit
			} else {
				out.TakeProfitPrice = ref - req.TakeProfit
			}
		}
	}

	return out, nil
}

// referencePrice returns the price offsets are resolved against: the order's
// own limit price when it has one, otherwise the current market quote. Limit
// and stop entries define their own entry reference, so no quote round trip
// is needed for them.
func (r *Resolver) referencePrice(ctx context.Context, req domain.OrderRequest) (float64, error) {
	switch req.Type {
	case domain.OrderTypeLimit, domain.OrderTypeStopLimit:
		return req.Price, nil
	case domain.OrderTypeStop:
		return req.StopPrice, nil
	}

	if r.quotes != nil {
		q, err := r.quotes.GetQuote(ctx, req.Symbol)
		if err == nil && time.Since(q.At) <= quoteMaxAge {
			return q.Mid(), nil
		}
	}

	q, err := r.broker.FetchPrice(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("resolver: quote %q: %w", req.Symbol, err)
		}
		return 0, fmt.Errorf("resolver: quote %q: %w: %v", req.Symbol, domain.ErrPriceUnavailable, err)
	}
	if q.Mid() <= 0 {
		return 0, fmt.Errorf("resolver: quote %q: %w: empty book", req.Symbol, domain.ErrPriceUnavailable)
	}

	if r.quotes != nil {
		if cacheErr := r.quotes.SetQuote(ctx, q); cacheErr != nil {
			r.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("symbol", req.Symbol),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return q.Mid(), nil
}
