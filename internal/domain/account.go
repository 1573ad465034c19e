package domain

// Account is a broker account row as returned by the accounts listing.
type Account struct {
	ID       string  `json:"id"`
	Number   string  `json:"account_number,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Balance  float64 `json:"balance"`
}

// AccountDetails is the derived risk summary for an account: balance plus
// margin metrics computed from the open positions.
type AccountDetails struct {
	AccountID       string  `json:"account_id"`
	Balance         float64 `json:"balance"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	Equity          float64 `json:"equity"`
	PositionsValue  float64 `json:"positions_value"`
	MarginUsed      float64 `json:"margin_used"`
	MarginAvailable float64 `json:"margin_available"`
	MarginLevel     float64 `json:"margin_level"`
	OpenPositions   int     `json:"open_positions"`
}

// BrokerInfo describes the configured broker session for the info endpoint.
type BrokerInfo struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
	AccountID   string `json:"account_id,omitempty"`
	AccountNum  string `json:"account_number,omitempty"`
	Connected   bool   `json:"connected"`
}
