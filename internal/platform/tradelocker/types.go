package tradelocker

import "github.com/kterrell/tradegate/internal/domain"

// Wire types for the TradeLocker backend API.

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

type authResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpireDate   string `json:"expireDate"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type accountRow struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	AccNum   string  `json:"accNum"`
	Currency string  `json:"currency"`
	Balance  float64 `json:"accountBalance"`
}

type accountsResponse struct {
	Accounts []accountRow `json:"accounts"`
}

type instrumentRow struct {
	TradableInstrumentID int64   `json:"tradableInstrumentId"`
	RouteID              int64   `json:"routeId"`
	Name                 string  `json:"name"`
	Description          string  `json:"description"`
	Type                 string  `json:"type"`
	TickSize             float64 `json:"tickSize"`
	LotSize              float64 `json:"lotSize"`
	TradingDays          string  `json:"tradingDays"`
}

type instrumentsResponse struct {
	Instruments []instrumentRow `json:"instruments"`
}

type quoteResponse struct {
	Data struct {
		BidPrice float64 `json:"bp"`
		AskPrice float64 `json:"ap"`
		Last     float64 `json:"lp"`
	} `json:"d"`
}

type orderPayload struct {
	TradableInstrumentID int64   `json:"tradableInstrumentId"`
	RouteID              int64   `json:"routeId"`
	Qty                  float64 `json:"qty"`
	Side                 string  `json:"side"`
	Type                 string  `json:"type"`
	Validity             string  `json:"validity"`
	Price                float64 `json:"price,omitempty"`
	StopPrice            float64 `json:"stopPrice,omitempty"`
	StopLoss             float64 `json:"stopLoss,omitempty"`
	StopLossType         string  `json:"stopLossType,omitempty"`
	TakeProfit           float64 `json:"takeProfit,omitempty"`
	TakeProfitType       string  `json:"takeProfitType,omitempty"`
}

type orderResponse struct {
	Data struct {
		OrderID   string  `json:"orderId"`
		Status    string  `json:"status"`
		FilledQty float64 `json:"filledQty"`
		Message   string  `json:"message"`
	} `json:"d"`
}

type positionRow struct {
	ID                   string  `json:"id"`
	TradableInstrumentID int64   `json:"tradableInstrumentId"`
	Symbol               string  `json:"symbol"`
	Side                 string  `json:"side"`
	Qty                  float64 `json:"qty"`
	AvgPrice             float64 `json:"avgPrice"`
	UnrealizedPnL        float64 `json:"unrealizedPl"`
	OpenDate             string  `json:"openDate"`
}

type positionsResponse struct {
	Data struct {
		Positions []positionRow `json:"positions"`
	} `json:"d"`
}

type errorResponse struct {
	Code    string `json:"errCode"`
	Message string `json:"errMsg"`
}

// orderTypeWire maps gateway order types onto the broker's wire names.
var orderTypeWire = map[domain.OrderType]string{
	domain.OrderTypeMarket:    "market",
	domain.OrderTypeLimit:     "limit",
	domain.OrderTypeStop:      "stop",
	domain.OrderTypeStopLimit: "stopLimit",
}

// statusFromWire maps the broker's order status strings onto lifecycle
// states. Unknown strings map to accepted: the broker acknowledged the
// order, and later fetches refine the state.
func statusFromWire(s string) domain.OrderStatus {
	switch s {
	case "New", "Accepted", "Working":
		return domain.StatusAccepted
	case "Filled":
		return domain.StatusFilled
	case "PartiallyFilled":
		return domain.StatusPartiallyFilled
	case "Rejected":
		return domain.StatusRejected
	case "Cancelled", "Canceled":
		return domain.StatusCancelled
	case "Expired":
		return domain.StatusExpired
	}
	return domain.StatusAccepted
}
