package domain

import "context"

// BrokerGateway is the boundary to the external broker. Implementations are
// stateless remote-call adapters: they own no persistent state and every
// method is a single broker round trip. Callers apply timeouts via ctx and
// must treat a submission timeout as an indeterminate outcome, never as a
// failure.
type BrokerGateway interface {
	// SubmitOrder places a resolved order. Not idempotent: callers must
	// never retry a submission whose outcome is unknown.
	SubmitOrder(ctx context.Context, order ResolvedOrder) (OrderAck, error)

	// CancelOrder cancels a resting order by the broker's order id.
	CancelOrder(ctx context.Context, brokerOrderID string) error

	// FetchPositions returns the broker's current position rows.
	FetchPositions(ctx context.Context) ([]Position, error)

	// FetchInstruments returns the tradeable instruments.
	FetchInstruments(ctx context.Context) ([]Instrument, error)

	// FetchPrice returns the latest quote for a symbol, or ErrNotFound
	// when the symbol is unknown.
	FetchPrice(ctx context.Context, symbol string) (Quote, error)

	// FetchAccounts returns the accounts visible to the session.
	FetchAccounts(ctx context.Context) ([]Account, error)

	// Info describes the broker session for diagnostics.
	Info(ctx context.Context) (BrokerInfo, error)
}
