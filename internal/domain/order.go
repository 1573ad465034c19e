// Package domain defines the core business types for the trading gateway:
// orders, positions, instruments, accounts, and the interfaces that the
// storage, cache, and broker layers implement.
package domain

import (
	"time"
)

// OrderType identifies how an order is priced and triggered.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// Valid reports whether t is a recognised order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit:
		return true
	}
	return false
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a recognised side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the inverted side, used when constructing closing orders.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Validity controls how long an order rests at the broker.
type Validity string

const (
	ValidityGTC Validity = "GTC"
	ValidityIOC Validity = "IOC"
	ValidityFOK Validity = "FOK"
)

// Valid reports whether v is a recognised validity.
func (v Validity) Valid() bool {
	switch v {
	case ValidityGTC, ValidityIOC, ValidityFOK:
		return true
	}
	return false
}

// StopLossType selects how the stop_loss field of a request is interpreted.
type StopLossType string

const (
	StopLossAbsolute StopLossType = "absolute"
	StopLossOffset   StopLossType = "offset"
	StopLossTrailing StopLossType = "trailingOffset"
)

// Valid reports whether t is a recognised stop-loss type.
func (t StopLossType) Valid() bool {
	switch t {
	case StopLossAbsolute, StopLossOffset, StopLossTrailing:
		return true
	}
	return false
}

// TakeProfitType selects how the take_profit field of a request is
// interpreted. The broker has no trailing take-profit primitive.
type TakeProfitType string

const (
	TakeProfitAbsolute TakeProfitType = "absolute"
	TakeProfitOffset   TakeProfitType = "offset"
)

// Valid reports whether t is a recognised take-profit type.
func (t TakeProfitType) Valid() bool {
	return t == TakeProfitAbsolute || t == TakeProfitOffset
}

// OrderStatus is the lifecycle state of an order. Transitions are driven only
// by broker responses, never inferred from elapsed time.
//
//	pending -> submitted -> {accepted, rejected}
//	accepted -> {filled, partially_filled, cancelled, expired}
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusSubmitted       OrderStatus = "submitted"
	StatusAccepted        OrderStatus = "accepted"
	StatusRejected        OrderStatus = "rejected"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusExpired         OrderStatus = "expired"
)

// Terminal reports whether no further transitions are possible from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusFilled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusSubmitted
	case StatusSubmitted:
		return next == StatusAccepted || next == StatusRejected
	case StatusAccepted, StatusPartiallyFilled:
		switch next {
		case StatusFilled, StatusPartiallyFilled, StatusCancelled, StatusExpired:
			return true
		}
	}
	return false
}

// OrderRequest is an inbound order as received from the API, prior to
// validation and stop-level resolution.
type OrderRequest struct {
	Symbol         string         `json:"symbol"`
	Type           OrderType      `json:"order_type"`
	Side           Side           `json:"side"`
	Quantity       float64        `json:"quantity"`
	Price          float64        `json:"price,omitempty"`
	StopPrice      float64        `json:"stop_price,omitempty"`
	StopLoss       float64        `json:"stop_loss,omitempty"`
	StopLossType   StopLossType   `json:"stop_loss_type,omitempty"`
	TakeProfit     float64        `json:"take_profit,omitempty"`
	TakeProfitType TakeProfitType `json:"take_profit_type,omitempty"`
	Validity       Validity       `json:"validity,omitempty"`
	Description    string         `json:"description,omitempty"`
}

// ResolvedOrder is an OrderRequest after validation and stop-level
// resolution. Stop-loss and take-profit are absolute broker price levels,
// except for trailing stops which carry the offset for the broker to track.
// A ResolvedOrder is immutable once submitted.
type ResolvedOrder struct {
	Request OrderRequest `json:"request"`

	// StopLossPrice is the absolute stop-loss level. Zero when the request
	// carries no stop-loss or when the stop is trailing.
	StopLossPrice float64 `json:"stop_loss_price,omitempty"`

	// TakeProfitPrice is the absolute take-profit level. Zero when the
	// request carries no take-profit.
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`

	// TrailingOffset instructs the broker to submit a trailing-stop
	// primitive with this offset. The broker, not the gateway, tracks the
	// favourable high/low over time. Zero when the stop is not trailing.
	TrailingOffset float64 `json:"trailing_offset,omitempty"`

	// ReferencePrice is the market price offsets were resolved against,
	// recorded for the audit trail. Zero when no quote was needed.
	ReferencePrice float64 `json:"reference_price,omitempty"`
}

// Order is a tracked order: the resolved snapshot plus broker identity and
// lifecycle state. State transitions append audit events; the row itself
// records only the latest status.
type Order struct {
	ID                    string        `json:"id"`
	BrokerOrderID         string        `json:"broker_order_id,omitempty"`
	Resolved              ResolvedOrder `json:"resolved"`
	Status                OrderStatus   `json:"status"`
	Reason                string        `json:"reason,omitempty"`
	FilledQuantity        float64       `json:"filled_quantity"`
	LinkedPositionID      string        `json:"linked_position_id,omitempty"`
	LinkedOppositeOrderID string        `json:"linked_opposite_order_id,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

// Symbol returns the instrument code the order trades.
func (o *Order) Symbol() string { return o.Resolved.Request.Symbol }

// IsClosing reports whether this order was created to neutralise a position.
func (o *Order) IsClosing() bool { return o.LinkedPositionID != "" }

// OrderAck is the broker's acknowledgement of a submission.
type OrderAck struct {
	BrokerOrderID string      `json:"broker_order_id"`
	Status        OrderStatus `json:"status"`
	FilledQty     float64     `json:"filled_qty"`
	Message       string      `json:"message,omitempty"`
}

// OrderEvent is published on the signal bus after every state transition.
type OrderEvent struct {
	OrderID       string      `json:"order_id"`
	BrokerOrderID string      `json:"broker_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Quantity      float64     `json:"quantity"`
	Status        OrderStatus `json:"status"`
	Reason        string      `json:"reason,omitempty"`
	At            time.Time   `json:"at"`
}
