package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kterrell/tradegate/internal/domain"
)

// In-memory doubles for the store, cache, and broker interfaces.

type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]domain.Order)}
}

func (m *memOrderStore) Create(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *memOrderStore) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, brokerOrderID, reason string, filledQty float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	if brokerOrderID != "" {
		o.BrokerOrderID = brokerOrderID
	}
	if reason != "" {
		o.Reason = reason
	}
	o.FilledQuantity = filledQty
	o.UpdatedAt = time.Now().UTC()
	m.orders[id] = o
	return nil
}

func (m *memOrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (m *memOrderStore) GetByBrokerID(_ context.Context, brokerOrderID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.BrokerOrderID == brokerOrderID {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (m *memOrderStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memOrderStore) ListOpen(_ context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrderStore) ListClosing(_ context.Context, positionID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.LinkedPositionID == positionID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memOrderStore) LinkOpposite(_ context.Context, orderID, oppositeOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.LinkedOppositeOrderID = oppositeOrderID
	m.orders[orderID] = o
	return nil
}

type memPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.Position)}
}

func (m *memPositionStore) Upsert(_ context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.positions[pos.ID]; ok {
		pos.ClosingOrderIDs = existing.ClosingOrderIDs
	}
	m.positions[pos.ID] = pos
	return nil
}

func (m *memPositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositionStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPositionStore) LinkClosingOrder(_ context.Context, positionID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, id := range p.ClosingOrderIDs {
		if id == orderID {
			return nil
		}
	}
	p.ClosingOrderIDs = append(p.ClosingOrderIDs, orderID)
	m.positions[positionID] = p
	return nil
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{
		ID:        int64(len(m.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEntry(nil), m.entries...), nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}
func (allowAllLimiter) Wait(context.Context, string) error { return nil }

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: make(map[string][][]byte)}
}

func (m *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[channel] = append(m.published[channel], payload)
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (m *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	return m.Publish(context.Background(), stream, payload)
}

func (m *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// memLocks mirrors the Redis lock semantics: a held key fails immediately
// with ErrLockHeld.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

type memQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func newMemQuoteCache() *memQuoteCache {
	return &memQuoteCache{quotes: make(map[string]domain.Quote)}
}

func (m *memQuoteCache) SetQuote(_ context.Context, q domain.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.Symbol] = q
	return nil
}

func (m *memQuoteCache) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func (m *memQuoteCache) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(symbols))
	for _, s := range symbols {
		if q, err := m.GetQuote(ctx, s); err == nil {
			out[s] = q
		}
	}
	return out, nil
}

// fakeBroker is a scriptable BrokerGateway.
type fakeBroker struct {
	mu          sync.Mutex
	submitFn    func(ctx context.Context, order domain.ResolvedOrder) (domain.OrderAck, error)
	priceFn     func(ctx context.Context, symbol string) (domain.Quote, error)
	positions   []domain.Position
	accounts    []domain.Account
	instruments []domain.Instrument
	submitted   []domain.ResolvedOrder
	cancelled   []string
	submitSeq   int
}

func newFakeBroker() *fakeBroker {
	fb := &fakeBroker{}
	fb.submitFn = func(_ context.Context, _ domain.ResolvedOrder) (domain.OrderAck, error) {
		fb.submitSeq++
		return domain.OrderAck{
			BrokerOrderID: fmt.Sprintf("brk-%d", fb.submitSeq),
			Status:        domain.StatusAccepted,
		}, nil
	}
	fb.priceFn = func(_ context.Context, symbol string) (domain.Quote, error) {
		return domain.Quote{Symbol: symbol, Bid: 50000, Ask: 50000, Last: 50000, At: time.Now().UTC()}, nil
	}
	return fb
}

func (f *fakeBroker) SubmitOrder(ctx context.Context, order domain.ResolvedOrder) (domain.OrderAck, error) {
	f.mu.Lock()
	fn := f.submitFn
	f.submitted = append(f.submitted, order)
	f.mu.Unlock()
	return fn(ctx, order)
}

func (f *fakeBroker) CancelOrder(_ context.Context, brokerOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, brokerOrderID)
	return nil
}

func (f *fakeBroker) FetchPositions(context.Context) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Position(nil), f.positions...), nil
}

func (f *fakeBroker) FetchInstruments(context.Context) ([]domain.Instrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Instrument(nil), f.instruments...), nil
}

func (f *fakeBroker) FetchPrice(ctx context.Context, symbol string) (domain.Quote, error) {
	f.mu.Lock()
	fn := f.priceFn
	f.mu.Unlock()
	return fn(ctx, symbol)
}

func (f *fakeBroker) FetchAccounts(context.Context) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Account(nil), f.accounts...), nil
}

func (f *fakeBroker) Info(context.Context) (domain.BrokerInfo, error) {
	return domain.BrokerInfo{Name: "fake", Environment: "demo", Connected: true}, nil
}

func (f *fakeBroker) submittedOrders() []domain.ResolvedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ResolvedOrder(nil), f.submitted...)
}

// Compile-time interface checks.
var (
	_ domain.OrderStore    = (*memOrderStore)(nil)
	_ domain.PositionStore = (*memPositionStore)(nil)
	_ domain.AuditStore    = (*memAuditStore)(nil)
	_ domain.RateLimiter   = allowAllLimiter{}
	_ domain.SignalBus     = (*memBus)(nil)
	_ domain.LockManager   = (*memLocks)(nil)
	_ domain.QuoteCache    = (*memQuoteCache)(nil)
	_ domain.BrokerGateway = (*fakeBroker)(nil)
)
