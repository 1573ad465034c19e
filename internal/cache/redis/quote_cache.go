package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kterrell/tradegate/internal/domain"
)

// quoteTTL expires cached quotes so a dead feed cannot serve stale prices
// forever. Freshness for order resolution is checked separately by callers.
const quoteTTL = time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes. Each symbol's
// quote lives at "quote:{SYMBOL}" with bid/ask/last and a Unix nanosecond
// timestamp.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(symbol string) string {
	return "quote:" + strings.ToUpper(symbol)
}

// SetQuote stores the latest quote for a symbol.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteKey(q.Symbol)
	fields := map[string]interface{}{
		"bid":  strconv.FormatFloat(q.Bid, 'f', -1, 64),
		"ask":  strconv.FormatFloat(q.Ask, 'f', -1, 64),
		"last": strconv.FormatFloat(q.Last, 'f', -1, 64),
		"ts":   strconv.FormatInt(q.At.UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a symbol. It returns
// domain.ErrNotFound when no quote is cached.
func (qc *QuoteCache) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	return parseQuote(strings.ToUpper(symbol), vals)
}

// GetQuotes retrieves quotes for multiple symbols using a pipeline. Symbols
// without a cached quote are omitted from the result map.
func (qc *QuoteCache) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[strings.ToUpper(sym)] = pipe.HGetAll(ctx, quoteKey(sym))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.Quote, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := parseQuote(sym, vals)
		if err != nil {
			continue
		}
		result[sym] = q
	}
	return result, nil
}

func parseQuote(symbol string, vals map[string]string) (domain.Quote, error) {
	q := domain.Quote{Symbol: symbol}

	var err error
	if q.Bid, err = strconv.ParseFloat(vals["bid"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse bid %s: %w", symbol, err)
	}
	if q.Ask, err = strconv.ParseFloat(vals["ask"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ask %s: %w", symbol, err)
	}
	if q.Last, err = strconv.ParseFloat(vals["last"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse last %s: %w", symbol, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}
	q.At = time.Unix(0, tsNano)
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
