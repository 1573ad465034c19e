package domain

import "time"

// Instrument is a tradeable symbol as reported by the broker.
type Instrument struct {
	ID          int64   `json:"id"`
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name,omitempty"`
	Type        string  `json:"type,omitempty"`
	TickSize    float64 `json:"tick_size,omitempty"`
	LotSize     float64 `json:"lot_size,omitempty"`
	TradingDays string  `json:"trading_days,omitempty"`
}

// Quote is a point-in-time price for an instrument.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Last   float64   `json:"last"`
	At     time.Time `json:"at"`
}

// Mid returns the bid/ask midpoint, falling back to the last trade when one
// side of the book is empty.
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}
