package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kterrell/tradegate/internal/domain"
)

// OrderService defines the methods the order handler requires from the
// service layer.
type OrderService interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
	ListOpen(ctx context.Context) ([]domain.Order, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListOrders returns orders, optionally filtered by time range. With
// ?open=true only live (non-terminal) orders are returned.
// GET /api/v1/orders?open=true&limit=50&offset=0&since=...&until=...
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var orders []domain.Order
	var err error

	if r.URL.Query().Get("open") == "true" {
		orders, err = h.orders.ListOpen(r.Context())
	} else {
		orders, err = h.orders.ListOrders(r.Context(), parseListOpts(r))
	}

	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// GetOrder returns a single order by its local id.
// GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// PlaceOrder validates and submits a new order from a JSON request body.
// A validation failure reports every violated field at once.
// POST /api/v1/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// CancelOrder cancels a live order by its local id.
// DELETE /api/v1/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}
