package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kterrell/tradegate/internal/domain"
)

// busPositions is the signal bus channel carrying position events.
const busPositions = "positions"

// closeLockTTL bounds how long a close request may hold the per-position
// lock. Covers the broker round trip plus persistence.
const closeLockTTL = 30 * time.Second

// PositionService reconciles the broker's close-by-opposite-order semantics
// into a clean position model. A position row is never deleted: closing
// submits an inverse market order and net exposure is recomputed from the
// filled quantities of the closing orders. Concurrent close requests against
// the same position are serialised by a distributed per-position lock.
type PositionService struct {
	positions domain.PositionStore
	orders    domain.OrderStore
	locks     domain.LockManager
	bus       domain.SignalBus
	broker    domain.BrokerGateway
	orderSvc  *OrderService
	logger    *slog.Logger
}

// NewPositionService creates a PositionService with all required
// dependencies.
func NewPositionService(
	positions domain.PositionStore,
	orders domain.OrderStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	broker domain.BrokerGateway,
	orderSvc *OrderService,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		orders:    orders,
		locks:     locks,
		bus:       bus,
		broker:    broker,
		orderSvc:  orderSvc,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// PositionView is a position enriched with its derived net exposure.
type PositionView struct {
	domain.Position
	NetExposure float64 `json:"net_exposure"`
}

// Sync pulls the broker's position rows and upserts them locally. Existing
// closing-order links are preserved by the store. Read-only, so the fetch is
// retried a bounded number of times on transient failure.
func (s *PositionService) Sync(ctx context.Context) ([]domain.Position, error) {
	brokerPositions, err := fetchRetry(ctx, s.broker.FetchPositions)
	if err != nil {
		return nil, fmt.Errorf("position_service: fetch positions: %w", err)
	}

	for _, pos := range brokerPositions {
		if err := s.positions.Upsert(ctx, pos); err != nil {
			s.logger.WarnContext(ctx, "position upsert failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return brokerPositions, nil
}

// List returns locally tracked positions, refreshed from the broker, with
// net exposure derived per position.
func (s *PositionService) List(ctx context.Context, opts domain.ListOpts) ([]PositionView, error) {
	if _, err := s.Sync(ctx); err != nil {
		s.logger.WarnContext(ctx, "sync before list failed", slog.String("error", err.Error()))
	}

	positions, err := s.positions.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list positions: %w", err)
	}

	views := make([]PositionView, 0, len(positions))
	for _, pos := range positions {
		exposure, err := s.netExposure(ctx, &pos)
		if err != nil {
			return nil, err
		}
		views = append(views, PositionView{Position: pos, NetExposure: exposure})
	}
	return views, nil
}

// Get returns a single position with its derived net exposure.
func (s *PositionService) Get(ctx context.Context, id string) (PositionView, error) {
	pos, err := s.lookup(ctx, id)
	if err != nil {
		return PositionView{}, err
	}
	exposure, err := s.netExposure(ctx, &pos)
	if err != nil {
		return PositionView{}, err
	}
	return PositionView{Position: pos, NetExposure: exposure}, nil
}

// Close neutralises a position by submitting an inverse market order sized
// to the current net exposure. The position row is kept; the new order is
// linked into its closing-order list. A position whose exposure is already
// zero fails with ErrAlreadyClosed and produces no order.
func (s *PositionService) Close(ctx context.Context, positionID string) (domain.Order, error) {
	unlock, err := s.locks.Acquire(ctx, "position:close:"+positionID, closeLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.Order{}, fmt.Errorf("position_service: close %q: concurrent close in progress: %w", positionID, domain.ErrLockHeld)
		}
		return domain.Order{}, fmt.Errorf("position_service: close %q: acquire lock: %w", positionID, err)
	}
	defer unlock()

	pos, err := s.lookup(ctx, positionID)
	if err != nil {
		return domain.Order{}, err
	}

	exposure, err := s.netExposure(ctx, &pos)
	if err != nil {
		return domain.Order{}, err
	}
	if exposure == 0 {
		return domain.Order{}, fmt.Errorf("position_service: close %q: %w", positionID, domain.ErrAlreadyClosed)
	}

	req := domain.OrderRequest{
		Symbol:      pos.Symbol,
		Type:        domain.OrderTypeMarket,
		Side:        pos.Side.Opposite(),
		Quantity:    math.Abs(exposure),
		Validity:    domain.ValidityIOC,
		Description: "close position " + positionID,
	}

	order, err := s.orderSvc.PlaceClosingOrder(ctx, req, positionID)
	if err != nil {
		return order, fmt.Errorf("position_service: close %q: %w", positionID, err)
	}
	if order.Status == domain.StatusRejected {
		return order, fmt.Errorf("position_service: close %q: %w", positionID,
			&domain.BrokerRejection{OrderID: order.ID, Message: order.Reason})
	}

	if err := s.positions.LinkClosingOrder(ctx, positionID, order.ID); err != nil {
		s.logger.ErrorContext(ctx, "link closing order failed",
			slog.String("position_id", positionID),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	// Best effort: back-link the entry order when the gateway placed it.
	if entry, lookupErr := s.orders.GetByBrokerID(ctx, positionID); lookupErr == nil {
		if linkErr := s.orders.LinkOpposite(ctx, entry.ID, order.ID); linkErr != nil {
			s.logger.WarnContext(ctx, "link opposite order failed",
				slog.String("order_id", entry.ID),
				slog.String("error", linkErr.Error()),
			)
		}
	}

	pos.ClosingOrderIDs = append(pos.ClosingOrderIDs, order.ID)
	remaining, err := s.netExposure(ctx, &pos)
	if err != nil {
		remaining = 0
	}

	action := "close_submitted"
	if remaining == 0 {
		action = "closed"
	}
	evt, _ := json.Marshal(domain.PositionEvent{
		PositionID:  positionID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		NetExposure: remaining,
		Action:      action,
		OrderID:     order.ID,
		At:          time.Now().UTC(),
	})
	if pubErr := s.bus.Publish(ctx, busPositions, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish position event failed",
			slog.String("position_id", positionID),
			slog.String("error", pubErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "position close submitted",
		slog.String("position_id", positionID),
		slog.String("order_id", order.ID),
		slog.Float64("closed_quantity", req.Quantity),
		slog.Float64("net_exposure", remaining),
	)

	return order, nil
}

// lookup fetches a position from the local store, falling back to a broker
// sync when the id is unknown locally.
func (s *PositionService) lookup(ctx context.Context, id string) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, id)
	if err == nil {
		return pos, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Position{}, fmt.Errorf("position_service: get %q: %w", id, err)
	}

	if _, syncErr := s.Sync(ctx); syncErr != nil {
		return domain.Position{}, fmt.Errorf("position_service: get %q: %w", id, domain.ErrNotFound)
	}
	pos, err = s.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get %q: %w", id, err)
	}
	return pos, nil
}

// netExposure derives the signed open quantity from the filled quantities of
// the position's closing orders. Rejected and cancelled closers contribute
// nothing.
func (s *PositionService) netExposure(ctx context.Context, pos *domain.Position) (float64, error) {
	closers, err := s.orders.ListClosing(ctx, pos.ID)
	if err != nil {
		return 0, fmt.Errorf("position_service: list closing orders %q: %w", pos.ID, err)
	}

	var closedQty float64
	for _, o := range closers {
		switch o.Status {
		case domain.StatusFilled, domain.StatusPartiallyFilled:
			closedQty += o.FilledQuantity
		case domain.StatusAccepted, domain.StatusSubmitted:
			// A live closer reserves the full quantity so a second
			// close cannot double-neutralise while it works.
			closedQty += o.Resolved.Request.Quantity
		}
	}
	return pos.NetExposure(closedQty), nil
}
