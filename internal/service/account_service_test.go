package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kterrell/tradegate/internal/domain"
)

func TestAccountDetailsMarginMetrics(t *testing.T) {
	broker := newFakeBroker()
	broker.accounts = []domain.Account{{ID: "acc-1", Balance: 10000, Currency: "USD"}}
	broker.positions = []domain.Position{
		{ID: "p1", Symbol: "BTCUSD", Side: domain.SideBuy, Quantity: 0.1, EntryPrice: 50000, UnrealizedPnL: 120},
		{ID: "p2", Symbol: "EURUSD", Side: domain.SideSell, Quantity: 1000, EntryPrice: 1.1, UnrealizedPnL: -20},
	}
	svc := NewAccountService(broker, discardLogger())

	d, err := svc.Details(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "acc-1", d.AccountID)
	assert.InDelta(t, 10100, d.Equity, 1e-9)           // 10000 + 120 - 20
	assert.InDelta(t, 6100, d.PositionsValue, 1e-9)    // 5000 + 1100
	assert.InDelta(t, 61, d.MarginUsed, 1e-9)          // 1% of gross value
	assert.InDelta(t, 10039, d.MarginAvailable, 1e-9)
	assert.InDelta(t, 10100.0/61*100, d.MarginLevel, 1e-6)
	assert.Equal(t, 2, d.OpenPositions)
}

func TestAccountDetailsNoPositions(t *testing.T) {
	broker := newFakeBroker()
	broker.accounts = []domain.Account{{ID: "acc-1", Balance: 500}}
	svc := NewAccountService(broker, discardLogger())

	d, err := svc.Details(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 500, d.Equity, 1e-9)
	assert.Zero(t, d.MarginUsed)
	assert.Zero(t, d.MarginLevel)
	assert.InDelta(t, 500, d.MarginAvailable, 1e-9)
}
