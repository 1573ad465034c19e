package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kterrell/tradegate/internal/domain"
)

func validMarketRequest() domain.OrderRequest {
	return domain.OrderRequest{
		Symbol:   "BTCUSD",
		Type:     domain.OrderTypeMarket,
		Side:     domain.SideBuy,
		Quantity: 0.5,
	}
}

func TestValidateMarketOrderDefaults(t *testing.T) {
	v := NewValidator()

	out, err := v.Validate(validMarketRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ValidityIOC, out.Validity)

	limit := domain.OrderRequest{
		Symbol:   "btcusd",
		Type:     domain.OrderTypeLimit,
		Side:     domain.SideSell,
		Quantity: 1,
		Price:    64000,
	}
	out, err = v.Validate(limit)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidityGTC, out.Validity)
	assert.Equal(t, "BTCUSD", out.Symbol)
}

func TestValidateStopLimitMissingStopPrice(t *testing.T) {
	v := NewValidator()

	req := domain.OrderRequest{
		Symbol:   "EURUSD",
		Type:     domain.OrderTypeStopLimit,
		Side:     domain.SideBuy,
		Quantity: 1,
		Price:    1.1,
	}
	_, err := v.Validate(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "stop_price", ve.Fields[0].Field)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := NewValidator()

	req := domain.OrderRequest{
		Symbol:       "",
		Type:         "bracket",
		Side:         "long",
		Quantity:     -2,
		StopLossType: domain.StopLossOffset,
		Validity:     "DAY",
	}
	_, err := v.Validate(req)
	require.Error(t, err)

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))

	got := make(map[string]bool, len(ve.Fields))
	for _, f := range ve.Fields {
		got[f.Field] = true
	}
	for _, want := range []string{"symbol", "order_type", "side", "quantity", "stop_loss", "validity"} {
		assert.True(t, got[want], "missing field error for %s", want)
	}
}

func TestValidateStopLevelFieldPairs(t *testing.T) {
	v := NewValidator()

	req := validMarketRequest()
	req.StopLoss = 500
	_, err := v.Validate(req)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "stop_loss_type", ve.Fields[0].Field)

	req = validMarketRequest()
	req.TakeProfitType = domain.TakeProfitOffset
	_, err = v.Validate(req)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "take_profit", ve.Fields[0].Field)

	req = validMarketRequest()
	req.StopLoss = 500
	req.StopLossType = domain.StopLossTrailing
	req.TakeProfit = 1000
	req.TakeProfitType = domain.TakeProfitOffset
	_, err = v.Validate(req)
	assert.NoError(t, err)
}

func TestValidateRequiredPrices(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		name  string
		typ   domain.OrderType
		field string
	}{
		{"limit needs price", domain.OrderTypeLimit, "price"},
		{"stop needs stop_price", domain.OrderTypeStop, "stop_price"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validMarketRequest()
			req.Type = tc.typ
			_, err := v.Validate(req)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			require.Len(t, ve.Fields, 1)
			assert.Equal(t, tc.field, ve.Fields[0].Field)
		})
	}
}
