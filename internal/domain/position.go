package domain

import "time"

// Position is an open (or neutralised) broker position. Rows are never
// deleted: closing a position submits an opposite order and appends its id to
// ClosingOrderIDs. The broker keeps the original row for its audit trail and
// so does the gateway.
type Position struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Side            Side      `json:"side"`
	Quantity        float64   `json:"quantity"`
	EntryPrice      float64   `json:"entry_price"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
	ClosingOrderIDs []string  `json:"closing_order_ids,omitempty"`
	OpenedAt        time.Time `json:"opened_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NetExposure returns the signed quantity still open: the original quantity
// minus the filled quantity of every closing order, positive for long
// positions and negative for short. closedQty is the summed filled quantity
// of the closing orders (always non-negative).
func (p *Position) NetExposure(closedQty float64) float64 {
	remaining := p.Quantity - closedQty
	if remaining < 0 {
		remaining = 0
	}
	if p.Side == SideSell {
		return -remaining
	}
	return remaining
}

// PositionEvent is published on the signal bus when exposure changes.
type PositionEvent struct {
	PositionID  string    `json:"position_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	NetExposure float64   `json:"net_exposure"`
	Action      string    `json:"action"` // "opened", "close_submitted", "closed"
	OrderID     string    `json:"order_id,omitempty"`
	At          time.Time `json:"at"`
}
