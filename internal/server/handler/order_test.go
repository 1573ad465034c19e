package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kterrell/tradegate/internal/domain"
)

type fakeOrderService struct {
	placeFn  func(ctx context.Context, req domain.OrderRequest) (domain.Order, error)
	cancelFn func(ctx context.Context, orderID string) (domain.Order, error)
	getFn    func(ctx context.Context, id string) (domain.Order, error)
	listFn   func(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
	openFn   func(ctx context.Context) ([]domain.Order, error)
}

func (f *fakeOrderService) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	return f.placeFn(ctx, req)
}

func (f *fakeOrderService) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return f.cancelFn(ctx, orderID)
}

func (f *fakeOrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return f.getFn(ctx, id)
}

func (f *fakeOrderService) ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	return f.listFn(ctx, opts)
}

func (f *fakeOrderService) ListOpen(ctx context.Context) ([]domain.Order, error) {
	return f.openFn(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrderMux(svc OrderService) *http.ServeMux {
	h := NewOrderHandler(svc, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/orders", h.ListOrders)
	mux.HandleFunc("POST /api/v1/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/v1/orders/{id}", h.GetOrder)
	mux.HandleFunc("DELETE /api/v1/orders/{id}", h.CancelOrder)
	return mux
}

func TestPlaceOrderReturnsCreatedOrder(t *testing.T) {
	svc := &fakeOrderService{
		placeFn: func(_ context.Context, req domain.OrderRequest) (domain.Order, error) {
			return domain.Order{
				ID:     "ord-1",
				Status: domain.StatusAccepted,
				Resolved: domain.ResolvedOrder{
					Request: req,
				},
			}, nil
		},
	}

	body := `{"symbol":"BTCUSD","order_type":"market","side":"buy","quantity":0.01}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newOrderMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var got domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ord-1", got.ID)
	assert.Equal(t, domain.StatusAccepted, got.Status)
	assert.Equal(t, "BTCUSD", got.Resolved.Request.Symbol)
}

func TestPlaceOrderValidationFailureListsEveryField(t *testing.T) {
	svc := &fakeOrderService{
		placeFn: func(_ context.Context, _ domain.OrderRequest) (domain.Order, error) {
			return domain.Order{}, domain.NewValidationError([]domain.FieldError{
				{Field: "quantity", Reason: "must be positive"},
				{Field: "stop_price", Reason: "required for stop_limit orders"},
			})
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	newOrderMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error  string              `json:"error"`
		Fields []domain.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Fields, 2)
	assert.Equal(t, "quantity", resp.Fields[0].Field)
	assert.Equal(t, "stop_price", resp.Fields[1].Field)
}

func TestPlaceOrderBrokerRejectionCarriesMessage(t *testing.T) {
	svc := &fakeOrderService{
		placeFn: func(_ context.Context, _ domain.OrderRequest) (domain.Order, error) {
			return domain.Order{}, &domain.BrokerRejection{
				OrderID: "ord-2",
				Message: "insufficient margin",
			}
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"symbol":"BTCUSD"}`))
	rec := httptest.NewRecorder()
	newOrderMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient margin", resp["message"])
	assert.Equal(t, "ord-2", resp["order_id"])
}

func TestPlaceOrderIndeterminateOutcomeIsGatewayTimeout(t *testing.T) {
	svc := &fakeOrderService{
		placeFn: func(_ context.Context, _ domain.OrderRequest) (domain.Order, error) {
			return domain.Order{}, domain.ErrIndeterminate
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"symbol":"BTCUSD"}`))
	rec := httptest.NewRecorder()
	newOrderMux(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "query the order")
}

func TestPlaceOrderRejectsMalformedBody(t *testing.T) {
	svc := &fakeOrderService{}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	newOrderMux(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelOrderConflictWhenTerminal(t *testing.T) {
	svc := &fakeOrderService{
		cancelFn: func(_ context.Context, _ string) (domain.Order, error) {
			return domain.Order{}, domain.ErrConflict
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/orders/ord-1", nil)
	rec := httptest.NewRecorder()
	newOrderMux(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &fakeOrderService{
		getFn: func(_ context.Context, _ string) (domain.Order, error) {
			return domain.Order{}, domain.ErrNotFound
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/nope", nil)
	rec := httptest.NewRecorder()
	newOrderMux(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrdersOpenFilter(t *testing.T) {
	var openCalled bool
	svc := &fakeOrderService{
		openFn: func(_ context.Context) ([]domain.Order, error) {
			openCalled = true
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?open=true", nil)
	rec := httptest.NewRecorder()
	newOrderMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, openCalled)
	// Empty result serialises as an empty array, not null.
	assert.Contains(t, rec.Body.String(), `"orders":[]`)
}

func TestListOrdersPassesPagination(t *testing.T) {
	var gotOpts domain.ListOpts
	svc := &fakeOrderService{
		listFn: func(_ context.Context, opts domain.ListOpts) ([]domain.Order, error) {
			gotOpts = opts
			return []domain.Order{{ID: "ord-1"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=10&offset=20", nil)
	rec := httptest.NewRecorder()
	newOrderMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, gotOpts.Limit)
	assert.Equal(t, 20, gotOpts.Offset)
}
