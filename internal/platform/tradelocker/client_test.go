package tradelocker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kterrell/tradegate/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/jwt/token", func(w http.ResponseWriter, r *http.Request) {
		var req authRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "trader@example.com", req.Email)
		json.NewEncoder(w).Encode(authResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpireDate:   time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /trade/accounts/acc-1/instruments", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(instrumentsResponse{Instruments: []instrumentRow{
			{TradableInstrumentID: 278, RouteID: 901, Name: "BTCUSD", Description: "Bitcoin", TickSize: 0.01},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mux
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(Config{
		Environment: "demo",
		BaseURL:     srv.URL,
		Username:    "trader@example.com",
		Password:    "secret",
		Server:      "DEMO1",
		AccountID:   "acc-1",
		AccountNum:  "7",
	}, testLogger())
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestSubmitOrder(t *testing.T) {
	srv, mux := newTestServer(t)
	mux.HandleFunc("POST /trade/accounts/acc-1/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.Equal(t, "7", r.Header.Get("accNum"))

		var p orderPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, int64(278), p.TradableInstrumentID)
		assert.Equal(t, int64(901), p.RouteID)
		assert.Equal(t, "buy", p.Side)
		assert.Equal(t, "market", p.Type)
		assert.Equal(t, "IOC", p.Validity)
		assert.InDelta(t, 49500, p.StopLoss, 1e-9)
		assert.Equal(t, "absolute", p.StopLossType)

		var resp orderResponse
		resp.Data.OrderID = "ord-99"
		resp.Data.Status = "Accepted"
		json.NewEncoder(w).Encode(resp)
	})
	c := newTestClient(t, srv)

	ack, err := c.SubmitOrder(context.Background(), domain.ResolvedOrder{
		Request: domain.OrderRequest{
			Symbol:   "BTCUSD",
			Type:     domain.OrderTypeMarket,
			Side:     domain.SideBuy,
			Quantity: 0.5,
			Validity: domain.ValidityIOC,
		},
		StopLossPrice: 49500,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-99", ack.BrokerOrderID)
	assert.Equal(t, domain.StatusAccepted, ack.Status)
}

func TestSubmitOrderTrailingStop(t *testing.T) {
	srv, mux := newTestServer(t)
	mux.HandleFunc("POST /trade/accounts/acc-1/orders", func(w http.ResponseWriter, r *http.Request) {
		var p orderPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.InDelta(t, 250, p.StopLoss, 1e-9)
		assert.Equal(t, "trailingOffset", p.StopLossType)

		var resp orderResponse
		resp.Data.OrderID = "ord-1"
		resp.Data.Status = "Accepted"
		json.NewEncoder(w).Encode(resp)
	})
	c := newTestClient(t, srv)

	_, err := c.SubmitOrder(context.Background(), domain.ResolvedOrder{
		Request: domain.OrderRequest{
			Symbol:   "BTCUSD",
			Type:     domain.OrderTypeMarket,
			Side:     domain.SideBuy,
			Quantity: 1,
			Validity: domain.ValidityIOC,
		},
		TrailingOffset: 250,
	})
	require.NoError(t, err)
}

func TestSubmitOrderRejected(t *testing.T) {
	srv, mux := newTestServer(t)
	mux.HandleFunc("POST /trade/accounts/acc-1/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{Code: "INSUFFICIENT_MARGIN", Message: "insufficient margin"})
	})
	c := newTestClient(t, srv)

	_, err := c.SubmitOrder(context.Background(), domain.ResolvedOrder{
		Request: domain.OrderRequest{
			Symbol:   "BTCUSD",
			Type:     domain.OrderTypeMarket,
			Side:     domain.SideBuy,
			Quantity: 100,
			Validity: domain.ValidityIOC,
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBroker))
	assert.Contains(t, err.Error(), "insufficient margin")
}

func TestSubmitOrderUnknownSymbol(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newTestClient(t, srv)

	_, err := c.SubmitOrder(context.Background(), domain.ResolvedOrder{
		Request: domain.OrderRequest{
			Symbol:   "NOSUCH",
			Type:     domain.OrderTypeMarket,
			Side:     domain.SideBuy,
			Quantity: 1,
			Validity: domain.ValidityIOC,
		},
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFetchPositions(t *testing.T) {
	srv, mux := newTestServer(t)
	mux.HandleFunc("GET /trade/accounts/acc-1/positions", func(w http.ResponseWriter, r *http.Request) {
		var resp positionsResponse
		resp.Data.Positions = []positionRow{
			{ID: "pos-1", TradableInstrumentID: 278, Side: "buy", Qty: 0.01, AvgPrice: 50000, UnrealizedPnL: 12.5},
		}
		json.NewEncoder(w).Encode(resp)
	})
	c := newTestClient(t, srv)
	// Prime the instrument cache so the id maps back to the symbol.
	_, err := c.FetchInstruments(context.Background())
	require.NoError(t, err)

	positions, err := c.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "pos-1", positions[0].ID)
	assert.Equal(t, "BTCUSD", positions[0].Symbol)
	assert.Equal(t, domain.SideBuy, positions[0].Side)
	assert.InDelta(t, 0.01, positions[0].Quantity, 1e-12)
}

func TestFetchPrice(t *testing.T) {
	srv, mux := newTestServer(t)
	mux.HandleFunc("GET /trade/quotes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "901", r.URL.Query().Get("routeId"))
		assert.Equal(t, "278", r.URL.Query().Get("tradableInstrumentId"))
		var resp quoteResponse
		resp.Data.BidPrice = 49999
		resp.Data.AskPrice = 50001
		json.NewEncoder(w).Encode(resp)
	})
	c := newTestClient(t, srv)

	q, err := c.FetchPrice(context.Background(), "btcusd")
	require.NoError(t, err)
	assert.InDelta(t, 50000, q.Mid(), 1e-9)
	assert.Equal(t, "BTCUSD", q.Symbol)
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, domain.StatusAccepted, statusFromWire("New"))
	assert.Equal(t, domain.StatusFilled, statusFromWire("Filled"))
	assert.Equal(t, domain.StatusPartiallyFilled, statusFromWire("PartiallyFilled"))
	assert.Equal(t, domain.StatusCancelled, statusFromWire("Canceled"))
	assert.Equal(t, domain.StatusExpired, statusFromWire("Expired"))
	assert.Equal(t, domain.StatusAccepted, statusFromWire("SomethingNew"))
}
