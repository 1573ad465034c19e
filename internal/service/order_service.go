package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kterrell/tradegate/internal/domain"
)

// busOrders is the signal bus channel carrying order lifecycle events.
const busOrders = "orders"

// defaultSubmitTimeout bounds a single broker submission round trip.
const defaultSubmitTimeout = 10 * time.Second

// OrderService drives the order lifecycle: validation, stop-level resolution,
// broker submission, and state tracking. Transitions are driven only by
// broker responses. Submissions are never retried automatically: the broker
// API is not idempotent, and a blind retry after an ambiguous failure risks a
// duplicate order.
type OrderService struct {
	orders        domain.OrderStore
	audit         domain.AuditStore
	limiter       domain.RateLimiter
	bus           domain.SignalBus
	broker        domain.BrokerGateway
	validator     *Validator
	resolver      *Resolver
	submitTimeout time.Duration
	logger        *slog.Logger
}

// NewOrderService creates an OrderService with all required dependencies.
func NewOrderService(
	orders domain.OrderStore,
	audit domain.AuditStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	broker domain.BrokerGateway,
	validator *Validator,
	resolver *Resolver,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:        orders,
		audit:         audit,
		limiter:       limiter,
		bus:           bus,
		broker:        broker,
		validator:     validator,
		resolver:      resolver,
		submitTimeout: defaultSubmitTimeout,
		logger:        logger.With(slog.String("component", "order_service")),
	}
}

// WithSubmitTimeout overrides the broker submission timeout.
func (s *OrderService) WithSubmitTimeout(d time.Duration) *OrderService {
	if d > 0 {
		s.submitTimeout = d
	}
	return s
}

// PlaceOrder validates and resolves an inbound request, submits it to the
// broker, and records the outcome. The returned order carries the final
// status; on ErrIndeterminate the order is left in submitted state and the
// caller must reconcile before retrying.
func (s *OrderService) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	allowed, err := s.limiter.Allow(ctx, "orders:submit", 10, time.Second)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Order{}, fmt.Errorf("order_service: place order: %w", domain.ErrRateLimited)
	}

	validated, err := s.validator.Validate(req)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: place order: %w", err)
	}

	resolved, err := s.resolver.Resolve(ctx, validated)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: place order: %w", err)
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:        uuid.NewString(),
		Resolved:  resolved,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: create order: %w", err)
	}

	return s.submit(ctx, order)
}

// PlaceClosingOrder validates, resolves, and submits an order that
// neutralises an existing position. The order is linked to the position so
// net exposure can be derived from its fills. Used by the position
// reconciler; the per-position lock is the caller's responsibility.
func (s *OrderService) PlaceClosingOrder(ctx context.Context, req domain.OrderRequest, positionID string) (domain.Order, error) {
	validated, err := s.validator.Validate(req)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: place closing order: %w", err)
	}
	resolved, err := s.resolver.Resolve(ctx, validated)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: place closing order: %w", err)
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:               uuid.NewString(),
		Resolved:         resolved,
		Status:           domain.StatusPending,
		LinkedPositionID: positionID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: create closing order: %w", err)
	}

	return s.submit(ctx, order)
}

// submit performs the broker round trip for an order in pending state and
// records the resulting transition. Also used by the position reconciler for
// closing orders.
func (s *OrderService) submit(ctx context.Context, order domain.Order) (domain.Order, error) {
	s.transition(ctx, &order, domain.StatusSubmitted, "", "", 0)

	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	ack, err := s.broker.SubmitOrder(submitCtx, order.Resolved)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Broker-side outcome unknown. The order stays submitted;
			// the caller reconciles via position/order lookups before
			// any retry.
			s.auditLog(ctx, "order_indeterminate", map[string]any{
				"order_id": order.ID,
				"symbol":   order.Symbol(),
			})
			return order, fmt.Errorf("order_service: submit order %q: %w", order.ID, domain.ErrIndeterminate)
		}

		s.transition(ctx, &order, domain.StatusRejected, "", err.Error(), 0)
		if errors.Is(err, domain.ErrBroker) {
			return order, fmt.Errorf("order_service: submit order %q: %w", order.ID, err)
		}
		return order, fmt.Errorf("order_service: submit order %q: %w: %v", order.ID, domain.ErrBroker, err)
	}

	status := ack.Status
	if status == "" || !order.Status.CanTransitionTo(status) {
		status = domain.StatusAccepted
	}
	s.transition(ctx, &order, status, ack.BrokerOrderID, ack.Message, ack.FilledQty)

	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("broker_order_id", order.BrokerOrderID),
		slog.String("symbol", order.Symbol()),
		slog.String("side", string(order.Resolved.Request.Side)),
		slog.Float64("quantity", order.Resolved.Request.Quantity),
		slog.String("status", string(order.Status)),
	)
	return order, nil
}

// CancelOrder cancels a resting order at the broker and records the
// transition. Orders already in a terminal state cannot be cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: cancel order %q: %w", orderID, err)
	}
	if order.Status.Terminal() {
		return order, fmt.Errorf("order_service: cancel order %q: status %s: %w", orderID, order.Status, domain.ErrConflict)
	}

	if order.BrokerOrderID != "" {
		if err := s.broker.CancelOrder(ctx, order.BrokerOrderID); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return order, fmt.Errorf("order_service: cancel order %q: %w", orderID, domain.ErrIndeterminate)
			}
			return order, fmt.Errorf("order_service: cancel order %q: %w", orderID, err)
		}
	}

	s.transition(ctx, &order, domain.StatusCancelled, "", "cancelled by client", 0)
	s.logger.InfoContext(ctx, "order cancelled", slog.String("order_id", orderID))
	return order, nil
}

// GetOrder retrieves a single order by its local id.
func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: get order %q: %w", id, err)
	}
	return order, nil
}

// ListOrders returns orders with pagination.
func (s *OrderService) ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list orders: %w", err)
	}
	return orders, nil
}

// ListOpen returns all orders not yet in a terminal state.
func (s *OrderService) ListOpen(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("order_service: list open: %w", err)
	}
	return orders, nil
}

// transition moves an order to the next state, persists it, and emits the
// audit entry and bus event. The audit log is written at most once per
// transition. Persistence failures are logged but do not abort the caller:
// the broker-side action already happened and must not be un-reported.
func (s *OrderService) transition(ctx context.Context, order *domain.Order, next domain.OrderStatus, brokerOrderID, reason string, filledQty float64) {
	order.Status = next
	if brokerOrderID != "" {
		order.BrokerOrderID = brokerOrderID
	}
	if reason != "" {
		order.Reason = reason
	}
	if filledQty > 0 {
		order.FilledQuantity = filledQty
	}
	order.UpdatedAt = time.Now().UTC()

	if err := s.orders.UpdateStatus(ctx, order.ID, next, order.BrokerOrderID, order.Reason, order.FilledQuantity); err != nil {
		s.logger.ErrorContext(ctx, "status update failed",
			slog.String("order_id", order.ID),
			slog.String("status", string(next)),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, "order_"+string(next), map[string]any{
		"order_id":        order.ID,
		"broker_order_id": order.BrokerOrderID,
		"symbol":          order.Symbol(),
		"side":            string(order.Resolved.Request.Side),
		"quantity":        order.Resolved.Request.Quantity,
		"filled_quantity": order.FilledQuantity,
		"reason":          order.Reason,
	})

	evt, _ := json.Marshal(domain.OrderEvent{
		OrderID:       order.ID,
		BrokerOrderID: order.BrokerOrderID,
		Symbol:        order.Symbol(),
		Side:          order.Resolved.Request.Side,
		Quantity:      order.Resolved.Request.Quantity,
		Status:        next,
		Reason:        order.Reason,
		At:            order.UpdatedAt,
	})
	if err := s.bus.Publish(ctx, busOrders, evt); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, "stream:"+busOrders, evt); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
