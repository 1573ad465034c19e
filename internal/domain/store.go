package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists tracked orders.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	// UpdateStatus records a lifecycle transition. brokerOrderID and reason
	// may be empty when unchanged; filledQty is the cumulative fill.
	UpdateStatus(ctx context.Context, id string, status OrderStatus, brokerOrderID, reason string, filledQty float64) error
	GetByID(ctx context.Context, id string) (Order, error)
	GetByBrokerID(ctx context.Context, brokerOrderID string) (Order, error)
	List(ctx context.Context, opts ListOpts) ([]Order, error)
	ListOpen(ctx context.Context) ([]Order, error)
	// ListClosing returns the closing orders linked to a position, oldest
	// first. Net exposure is derived from their filled quantities.
	ListClosing(ctx context.Context, positionID string) ([]Order, error)
	// LinkOpposite records the closing order that neutralised the exposure
	// an entry order opened.
	LinkOpposite(ctx context.Context, orderID, oppositeOrderID string) error
}

// PositionStore persists position snapshots. Rows are never deleted; closing
// appends order links.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	List(ctx context.Context, opts ListOpts) ([]Position, error)
	// LinkClosingOrder appends orderID to the position's closing-order
	// list. Appending an id twice is a no-op.
	LinkClosingOrder(ctx context.Context, positionID, orderID string) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. Written at most once per
// order state transition.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
