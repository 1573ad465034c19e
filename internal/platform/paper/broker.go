// Package paper implements an in-process simulated broker. It fills market
// orders instantly at the simulated quote and keeps positions in memory, so
// the full gateway (lifecycle, reconciliation, persistence) can run without
// touching a real broker.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kterrell/tradegate/internal/domain"
)

// spreadFraction is the half-spread applied around the simulated mid.
const spreadFraction = 0.0001

// Broker is a simulated BrokerGateway. Safe for concurrent use.
type Broker struct {
	mu        sync.Mutex
	prices    map[string]float64
	positions map[string]domain.Position
	balance   float64
	rng       *rand.Rand
	logger    *slog.Logger
}

// NewBroker creates a simulated broker seeded with the given symbol mids and
// starting balance.
func NewBroker(prices map[string]float64, balance float64, logger *slog.Logger) *Broker {
	seeded := make(map[string]float64, len(prices))
	for sym, px := range prices {
		seeded[strings.ToUpper(sym)] = px
	}
	return &Broker{
		prices:    seeded,
		positions: make(map[string]domain.Position),
		balance:   balance,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger.With(slog.String("component", "paper_broker")),
	}
}

// SubmitOrder fills market orders at the simulated quote and opens or
// neutralises positions accordingly. Limit and stop orders are accepted but
// rest forever: the simulator has no matching loop.
func (b *Broker) SubmitOrder(_ context.Context, order domain.ResolvedOrder) (domain.OrderAck, error) {
	req := order.Request

	b.mu.Lock()
	defer b.mu.Unlock()

	mid, ok := b.prices[strings.ToUpper(req.Symbol)]
	if !ok {
		return domain.OrderAck{}, &domain.BrokerRejection{Message: fmt.Sprintf("unknown instrument %q", req.Symbol)}
	}

	if req.Type != domain.OrderTypeMarket {
		return domain.OrderAck{
			BrokerOrderID: uuid.NewString(),
			Status:        domain.StatusAccepted,
		}, nil
	}

	fillPrice := mid * (1 + spreadFraction)
	if req.Side == domain.SideSell {
		fillPrice = mid * (1 - spreadFraction)
	}

	b.applyFill(req, fillPrice)

	return domain.OrderAck{
		BrokerOrderID: uuid.NewString(),
		Status:        domain.StatusFilled,
		FilledQty:     req.Quantity,
	}, nil
}

// applyFill nets the fill against an existing position on the same symbol,
// or opens a new one. Mirrors the real broker: a neutralised position stays
// on the books with zero remaining quantity rather than being removed.
func (b *Broker) applyFill(req domain.OrderRequest, price float64) {
	for id, pos := range b.positions {
		if pos.Symbol != strings.ToUpper(req.Symbol) || pos.Quantity == 0 {
			continue
		}
		if pos.Side == req.Side {
			continue
		}

		closed := min(pos.Quantity, req.Quantity)
		pnl := (price - pos.EntryPrice) * closed
		if pos.Side == domain.SideSell {
			pnl = -pnl
		}
		b.balance += pnl
		pos.Quantity -= closed
		pos.UpdatedAt = time.Now().UTC()
		b.positions[id] = pos

		req.Quantity -= closed
		if req.Quantity <= 0 {
			return
		}
	}

	if req.Quantity > 0 {
		id := uuid.NewString()
		b.positions[id] = domain.Position{
			ID:         id,
			Symbol:     strings.ToUpper(req.Symbol),
			Side:       req.Side,
			Quantity:   req.Quantity,
			EntryPrice: price,
			OpenedAt:   time.Now().UTC(),
			UpdatedAt:  time.Now().UTC(),
		}
	}
}

// CancelOrder is a no-op: the simulator holds no resting order book.
func (b *Broker) CancelOrder(context.Context, string) error { return nil }

// FetchPositions returns the simulated position rows, including neutralised
// ones, with P&L marked to the current quote.
func (b *Broker) FetchPositions(context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		mid := b.prices[pos.Symbol]
		pnl := (mid - pos.EntryPrice) * pos.Quantity
		if pos.Side == domain.SideSell {
			pnl = -pnl
		}
		pos.UnrealizedPnL = pnl
		out = append(out, pos)
	}
	return out, nil
}

// FetchInstruments lists the seeded symbols.
func (b *Broker) FetchInstruments(context.Context) ([]domain.Instrument, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Instrument, 0, len(b.prices))
	var id int64
	for sym := range b.prices {
		id++
		out = append(out, domain.Instrument{ID: id, Symbol: sym, Type: "simulated"})
	}
	return out, nil
}

// FetchPrice returns the simulated quote, applying a small random walk so
// consumers see movement.
func (b *Broker) FetchPrice(_ context.Context, symbol string) (domain.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.ToUpper(symbol)
	mid, ok := b.prices[key]
	if !ok {
		return domain.Quote{}, fmt.Errorf("paper: quote %q: %w", symbol, domain.ErrNotFound)
	}

	mid *= 1 + (b.rng.Float64()-0.5)*0.0002
	b.prices[key] = mid

	return domain.Quote{
		Symbol: key,
		Bid:    mid * (1 - spreadFraction),
		Ask:    mid * (1 + spreadFraction),
		Last:   mid,
		At:     time.Now().UTC(),
	}, nil
}

// FetchAccounts returns the single simulated account.
func (b *Broker) FetchAccounts(context.Context) ([]domain.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return []domain.Account{{
		ID:       "paper-1",
		Number:   "1",
		Currency: "USD",
		Balance:  b.balance,
	}}, nil
}

// Info describes the simulated session.
func (b *Broker) Info(context.Context) (domain.BrokerInfo, error) {
	return domain.BrokerInfo{
		Name:        "paper",
		Environment: "simulated",
		AccountID:   "paper-1",
		AccountNum:  "1",
		Connected:   true,
	}, nil
}

// Compile-time interface check.
var _ domain.BrokerGateway = (*Broker)(nil)
