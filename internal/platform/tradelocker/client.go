// Package tradelocker implements the broker gateway against the TradeLocker
// backend REST API. The client owns a long-lived authenticated session with
// explicit lifecycle: Connect on startup, Close on shutdown. It holds no
// order or position state; every method is a single broker round trip.
package tradelocker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kterrell/tradegate/internal/domain"
)

// Environment base URLs.
const (
	demoBaseURL = "https://demo.tradelocker.com/backend-api"
	liveBaseURL = "https://live.tradelocker.com/backend-api"
)

// tokenRefreshMargin renews the access token this long before expiry.
const tokenRefreshMargin = 2 * time.Minute

// Config holds the broker session credentials.
type Config struct {
	// Environment is "demo" or "live".
	Environment string
	// BaseURL overrides the environment URL, mainly for tests.
	BaseURL  string
	Username string
	Password string
	Server   string
	// AccountID and AccountNum select the trading account for the session.
	AccountID  string
	AccountNum string
}

// Client is the REST client for the TradeLocker API. Safe for concurrent
// use; the token and instrument cache are guarded by a mutex.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	tokenExpiry  time.Time
	instruments  map[string]instrumentRow // by upper-cased symbol
}

// NewClient creates a TradeLocker client. Call Connect before use.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		if strings.EqualFold(cfg.Environment, "live") {
			base = liveBaseURL
		} else {
			base = demoBaseURL
		}
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(base, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "tradelocker")),
	}
}

// Connect authenticates with username/password and caches the JWT pair.
func (c *Client) Connect(ctx context.Context) error {
	body, err := c.doRequest(ctx, http.MethodPost, "/auth/jwt/token", authRequest{
		Email:    c.cfg.Username,
		Password: c.cfg.Password,
		Server:   c.cfg.Server,
	}, false)
	if err != nil {
		return fmt.Errorf("tradelocker: authenticate: %w", err)
	}

	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("tradelocker: decode auth response: %w", err)
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("tradelocker: authenticate: empty access token")
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	c.tokenExpiry = parseExpiry(resp.ExpireDate)
	c.mu.Unlock()

	c.logger.Info("broker session established",
		slog.String("environment", c.cfg.Environment),
		slog.String("server", c.cfg.Server),
	)
	return nil
}

// Close drops the cached session state. The broker expires the JWT server
// side; there is no explicit logout endpoint.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.refreshToken = ""
	return nil
}

// SubmitOrder places a resolved order. Not idempotent.
func (c *Client) SubmitOrder(ctx context.Context, order domain.ResolvedOrder) (domain.OrderAck, error) {
	req := order.Request
	inst, err := c.instrument(ctx, req.Symbol)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("tradelocker: submit order: %w", err)
	}

	payload := orderPayload{
		TradableInstrumentID: inst.TradableInstrumentID,
		RouteID:              inst.RouteID,
		Qty:                  req.Quantity,
		Side:                 string(req.Side),
		Type:                 orderTypeWire[req.Type],
		Validity:             string(req.Validity),
		Price:                req.Price,
		StopPrice:            req.StopPrice,
		TakeProfit:           order.TakeProfitPrice,
	}
	if order.TakeProfitPrice > 0 {
		payload.TakeProfitType = "absolute"
	}
	switch {
	case order.TrailingOffset > 0:
		// The broker tracks the trailing high/low itself.
		payload.StopLoss = order.TrailingOffset
		payload.StopLossType = "trailingOffset"
	case order.StopLossPrice > 0:
		payload.StopLoss = order.StopLossPrice
		payload.StopLossType = "absolute"
	}

	path := fmt.Sprintf("/trade/accounts/%s/orders", url.PathEscape(c.cfg.AccountID))
	body, err := c.doRequest(ctx, http.MethodPost, path, payload, true)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("tradelocker: submit order: %w", err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderAck{}, fmt.Errorf("tradelocker: decode order response: %w", err)
	}

	status := statusFromWire(resp.Data.Status)
	if status == domain.StatusRejected {
		return domain.OrderAck{}, &domain.BrokerRejection{Message: resp.Data.Message}
	}
	return domain.OrderAck{
		BrokerOrderID: resp.Data.OrderID,
		Status:        status,
		FilledQty:     resp.Data.FilledQty,
		Message:       resp.Data.Message,
	}, nil
}

// CancelOrder cancels a resting order by the broker's order id.
func (c *Client) CancelOrder(ctx context.Context, brokerOrderID string) error {
	path := fmt.Sprintf("/trade/orders/%s", url.PathEscape(brokerOrderID))
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil, true); err != nil {
		return fmt.Errorf("tradelocker: cancel order %s: %w", brokerOrderID, err)
	}
	return nil
}

// FetchPositions returns the account's current position rows.
func (c *Client) FetchPositions(ctx context.Context) ([]domain.Position, error) {
	path := fmt.Sprintf("/trade/accounts/%s/positions", url.PathEscape(c.cfg.AccountID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, fmt.Errorf("tradelocker: fetch positions: %w", err)
	}

	var resp positionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tradelocker: decode positions: %w", err)
	}

	out := make([]domain.Position, 0, len(resp.Data.Positions))
	for _, row := range resp.Data.Positions {
		side := domain.SideBuy
		if strings.EqualFold(row.Side, "sell") {
			side = domain.SideSell
		}
		symbol := row.Symbol
		if symbol == "" {
			symbol = c.symbolByID(row.TradableInstrumentID)
		}
		out = append(out, domain.Position{
			ID:            row.ID,
			Symbol:        symbol,
			Side:          side,
			Quantity:      row.Qty,
			EntryPrice:    row.AvgPrice,
			UnrealizedPnL: row.UnrealizedPnL,
			OpenedAt:      parseExpiry(row.OpenDate),
			UpdatedAt:     time.Now().UTC(),
		})
	}
	return out, nil
}

// FetchInstruments returns the tradeable instruments and refreshes the
// symbol lookup cache used by order submission.
func (c *Client) FetchInstruments(ctx context.Context) ([]domain.Instrument, error) {
	rows, err := c.fetchInstrumentRows(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Instrument, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Instrument{
			ID:          row.TradableInstrumentID,
			Symbol:      row.Name,
			Name:        row.Description,
			Type:        row.Type,
			TickSize:    row.TickSize,
			LotSize:     row.LotSize,
			TradingDays: row.TradingDays,
		})
	}
	return out, nil
}

// FetchPrice returns the latest quote for a symbol.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (domain.Quote, error) {
	inst, err := c.instrument(ctx, symbol)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("tradelocker: quote %q: %w", symbol, err)
	}

	path := fmt.Sprintf("/trade/quotes?routeId=%d&tradableInstrumentId=%d", inst.RouteID, inst.TradableInstrumentID)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("tradelocker: quote %q: %w", symbol, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("tradelocker: decode quote: %w", err)
	}
	return domain.Quote{
		Symbol: strings.ToUpper(symbol),
		Bid:    resp.Data.BidPrice,
		Ask:    resp.Data.AskPrice,
		Last:   resp.Data.Last,
		At:     time.Now().UTC(),
	}, nil
}

// FetchAccounts returns the accounts visible to the session.
func (c *Client) FetchAccounts(ctx context.Context) ([]domain.Account, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/auth/jwt/all-accounts", nil, true)
	if err != nil {
		return nil, fmt.Errorf("tradelocker: fetch accounts: %w", err)
	}

	var resp accountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tradelocker: decode accounts: %w", err)
	}

	out := make([]domain.Account, 0, len(resp.Accounts))
	for _, row := range resp.Accounts {
		out = append(out, domain.Account{
			ID:       row.ID,
			Number:   row.AccNum,
			Currency: row.Currency,
			Balance:  row.Balance,
		})
	}
	return out, nil
}

// Info describes the broker session.
func (c *Client) Info(_ context.Context) (domain.BrokerInfo, error) {
	c.mu.Lock()
	connected := c.accessToken != "" && time.Now().Before(c.tokenExpiry)
	c.mu.Unlock()

	env := c.cfg.Environment
	if env == "" {
		env = "demo"
	}
	return domain.BrokerInfo{
		Name:        "tradelocker",
		Environment: env,
		AccountID:   c.cfg.AccountID,
		AccountNum:  c.cfg.AccountNum,
		Connected:   connected,
	}, nil
}

// instrument resolves a symbol to its instrument row, loading the instrument
// list on first use.
func (c *Client) instrument(ctx context.Context, symbol string) (instrumentRow, error) {
	key := strings.ToUpper(symbol)

	c.mu.Lock()
	row, ok := c.instruments[key]
	c.mu.Unlock()
	if ok {
		return row, nil
	}

	if _, err := c.fetchInstrumentRows(ctx); err != nil {
		return instrumentRow{}, err
	}

	c.mu.Lock()
	row, ok = c.instruments[key]
	c.mu.Unlock()
	if !ok {
		return instrumentRow{}, fmt.Errorf("instrument %q: %w", symbol, domain.ErrNotFound)
	}
	return row, nil
}

func (c *Client) fetchInstrumentRows(ctx context.Context) ([]instrumentRow, error) {
	path := fmt.Sprintf("/trade/accounts/%s/instruments", url.PathEscape(c.cfg.AccountID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, fmt.Errorf("tradelocker: fetch instruments: %w", err)
	}

	var resp instrumentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tradelocker: decode instruments: %w", err)
	}

	c.mu.Lock()
	c.instruments = make(map[string]instrumentRow, len(resp.Instruments))
	for _, row := range resp.Instruments {
		c.instruments[strings.ToUpper(row.Name)] = row
	}
	c.mu.Unlock()

	return resp.Instruments, nil
}

func (c *Client) symbolByID(id int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sym, row := range c.instruments {
		if row.TradableInstrumentID == id {
			return sym
		}
	}
	return strconv.FormatInt(id, 10)
}

// doRequest builds, sends, and reads an HTTP request against the API. When
// authed is true the cached JWT is attached, refreshing it first if close to
// expiry.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any, authed bool) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if authed {
		token, err := c.token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("accNum", c.cfg.AccountNum)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// token returns a valid access token, refreshing when near expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.accessToken
	refresh := c.refreshToken
	needsRefresh := token == "" || time.Until(c.tokenExpiry) < tokenRefreshMargin
	c.mu.Unlock()

	if !needsRefresh {
		return token, nil
	}
	if refresh == "" {
		if err := c.Connect(ctx); err != nil {
			return "", err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.accessToken, nil
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/auth/jwt/refresh", refreshRequest{RefreshToken: refresh}, false)
	if err != nil {
		// Refresh tokens expire too; fall back to full auth.
		if connErr := c.Connect(ctx); connErr != nil {
			return "", fmt.Errorf("tradelocker: refresh token: %w", err)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.accessToken, nil
	}

	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("tradelocker: decode refresh response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		c.refreshToken = resp.RefreshToken
	}
	c.tokenExpiry = parseExpiry(resp.ExpireDate)
	token = c.accessToken
	c.mu.Unlock()
	return token, nil
}

// checkStatus maps non-2xx HTTP status codes to domain errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, domain.ErrUnauthorized)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", msg, domain.ErrRateLimited)
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
		return &domain.BrokerRejection{Message: msg}
	default:
		return fmt.Errorf("HTTP %d: %s: %w", statusCode, msg, domain.ErrBroker)
	}
}

// parseExpiry handles the broker's two timestamp shapes: RFC 3339 strings
// and unix milliseconds.
func parseExpiry(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	return time.Time{}
}

// Compile-time interface check.
var _ domain.BrokerGateway = (*Client)(nil)
