package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kterrell/tradegate/internal/domain"
)

// Watcher subscribes to the signal bus and converts order and position
// lifecycle events into operator notifications.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher over the given bus and notifier.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run consumes bus events until the context is cancelled. It should be
// called in a goroutine. Delivery failures are logged, never fatal.
func (w *Watcher) Run(ctx context.Context) error {
	orders, err := w.bus.Subscribe(ctx, "orders")
	if err != nil {
		return fmt.Errorf("notify: subscribe orders: %w", err)
	}
	positions, err := w.bus.Subscribe(ctx, "positions")
	if err != nil {
		return fmt.Errorf("notify: subscribe positions: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-orders:
			if !ok {
				return nil
			}
			w.handleOrderEvent(ctx, payload)
		case payload, ok := <-positions:
			if !ok {
				return nil
			}
			w.handlePositionEvent(ctx, payload)
		}
	}
}

func (w *Watcher) handleOrderEvent(ctx context.Context, payload []byte) {
	var ev domain.OrderEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		w.logger.WarnContext(ctx, "unparseable order event",
			slog.String("error", err.Error()),
		)
		return
	}

	var event, title string
	switch ev.Status {
	case domain.StatusFilled:
		event = "order_filled"
		title = "Order filled"
	case domain.StatusRejected:
		event = "order_rejected"
		title = "Order rejected"
	case domain.StatusCancelled:
		event = "order_cancelled"
		title = "Order cancelled"
	case domain.StatusExpired:
		event = "order_expired"
		title = "Order expired"
	default:
		// Intermediate transitions are too noisy to notify on.
		return
	}

	msg := fmt.Sprintf("%s %s %.8g %s (order %s)",
		ev.Side, ev.Symbol, ev.Quantity, ev.Status, ev.OrderID)
	if ev.Reason != "" {
		msg += "\nreason: " + ev.Reason
	}

	if err := w.notifier.Notify(ctx, event, title, msg); err != nil {
		w.logger.WarnContext(ctx, "order notification failed",
			slog.String("order_id", ev.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Watcher) handlePositionEvent(ctx context.Context, payload []byte) {
	var ev domain.PositionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		w.logger.WarnContext(ctx, "unparseable position event",
			slog.String("error", err.Error()),
		)
		return
	}

	if ev.Action != "closed" {
		return
	}

	msg := fmt.Sprintf("%s %s flat (position %s, closing order %s)",
		ev.Side, ev.Symbol, ev.PositionID, ev.OrderID)

	if err := w.notifier.Notify(ctx, "position_closed", "Position closed", msg); err != nil {
		w.logger.WarnContext(ctx, "position notification failed",
			slog.String("position_id", ev.PositionID),
			slog.String("error", err.Error()),
		)
	}
}
