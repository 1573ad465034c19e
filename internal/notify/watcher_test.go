package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kterrell/tradegate/internal/domain"
)

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...), append([]string(nil), r.bodies...)
}

// chanBus is a minimal in-process SignalBus for watcher tests.
type chanBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newChanBus() *chanBus {
	return &chanBus{subs: make(map[string][]chan []byte)}
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return ch, nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWatcherNotifiesOnFillAndRejection(t *testing.T) {
	bus := newChanBus()
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, nil, testLogger())
	w := NewWatcher(bus, notifier, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Wait for the subscriptions to land.
	waitFor(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs["orders"]) == 1 && len(bus.subs["positions"]) == 1
	})

	fill, err := json.Marshal(domain.OrderEvent{
		OrderID:  "ord-1",
		Symbol:   "BTCUSD",
		Side:     domain.SideBuy,
		Quantity: 0.01,
		Status:   domain.StatusFilled,
	})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "orders", fill))

	rejected, err := json.Marshal(domain.OrderEvent{
		OrderID: "ord-2",
		Symbol:  "ETHUSD",
		Side:    domain.SideSell,
		Status:  domain.StatusRejected,
		Reason:  "insufficient margin",
	})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "orders", rejected))

	waitFor(t, func() bool {
		titles, _ := sender.snapshot()
		return len(titles) == 2
	})

	titles, bodies := sender.snapshot()
	assert.Equal(t, []string{"Order filled", "Order rejected"}, titles)
	assert.Contains(t, bodies[0], "BTCUSD")
	assert.Contains(t, bodies[1], "insufficient margin")
}

func TestWatcherIgnoresIntermediateTransitions(t *testing.T) {
	bus := newChanBus()
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, nil, testLogger())
	w := NewWatcher(bus, notifier, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs["orders"]) == 1
	})

	accepted, err := json.Marshal(domain.OrderEvent{
		OrderID: "ord-1",
		Status:  domain.StatusAccepted,
	})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "orders", accepted))

	closed, err := json.Marshal(domain.PositionEvent{
		PositionID: "pos-1",
		Symbol:     "BTCUSD",
		Side:       domain.SideBuy,
		Action:     "closed",
		OrderID:    "ord-9",
	})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "positions", closed))

	waitFor(t, func() bool {
		titles, _ := sender.snapshot()
		return len(titles) == 1
	})

	// Only the position close produced a notification; the accepted
	// transition was dropped as noise.
	titles, bodies := sender.snapshot()
	assert.Equal(t, []string{"Position closed"}, titles)
	assert.Contains(t, bodies[0], "pos-1")
}

func TestNotifierFiltersByEventType(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, []string{"order_filled"}, testLogger())

	require.NoError(t, notifier.Notify(context.Background(), "order_filled", "Order filled", "x"))
	require.NoError(t, notifier.Notify(context.Background(), "order_cancelled", "Order cancelled", "y"))

	titles, _ := sender.snapshot()
	assert.Equal(t, []string{"Order filled"}, titles)
}
