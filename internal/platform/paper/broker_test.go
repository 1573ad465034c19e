package paper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kterrell/tradegate/internal/domain"
)

func newTestBroker() *Broker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBroker(map[string]float64{"BTCUSD": 50000}, 10000, logger)
}

func marketOrder(side domain.Side, qty float64) domain.ResolvedOrder {
	return domain.ResolvedOrder{Request: domain.OrderRequest{
		Symbol:   "BTCUSD",
		Type:     domain.OrderTypeMarket,
		Side:     side,
		Quantity: qty,
		Validity: domain.ValidityIOC,
	}}
}

func TestMarketOrderFillsAndOpensPosition(t *testing.T) {
	b := newTestBroker()

	ack, err := b.SubmitOrder(context.Background(), marketOrder(domain.SideBuy, 0.01))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, ack.Status)
	assert.InDelta(t, 0.01, ack.FilledQty, 1e-12)

	positions, err := b.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, domain.SideBuy, positions[0].Side)
	assert.InDelta(t, 0.01, positions[0].Quantity, 1e-12)
}

func TestOppositeOrderNeutralisesWithoutDeleting(t *testing.T) {
	b := newTestBroker()

	_, err := b.SubmitOrder(context.Background(), marketOrder(domain.SideBuy, 0.01))
	require.NoError(t, err)
	_, err = b.SubmitOrder(context.Background(), marketOrder(domain.SideSell, 0.01))
	require.NoError(t, err)

	positions, err := b.FetchPositions(context.Background())
	require.NoError(t, err)
	// The row survives with zero remaining quantity.
	require.Len(t, positions, 1)
	assert.Zero(t, positions[0].Quantity)
}

func TestLimitOrderRests(t *testing.T) {
	b := newTestBroker()

	order := marketOrder(domain.SideBuy, 1)
	order.Request.Type = domain.OrderTypeLimit
	order.Request.Price = 40000
	order.Request.Validity = domain.ValidityGTC

	ack, err := b.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, ack.Status)
	assert.Zero(t, ack.FilledQty)
}

func TestUnknownSymbol(t *testing.T) {
	b := newTestBroker()

	order := marketOrder(domain.SideBuy, 1)
	order.Request.Symbol = "NOSUCH"
	_, err := b.SubmitOrder(context.Background(), order)
	assert.True(t, errors.Is(err, domain.ErrBroker))

	_, err = b.FetchPrice(context.Background(), "NOSUCH")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
