package service

import (
	"strings"

	"github.com/kterrell/tradegate/internal/domain"
)

// Validator normalises and validates inbound order requests. Validation has
// no side effects and reports every violated field at once, so clients get a
// complete error report in a single round trip.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks req and returns the normalised request on success. On
// failure it returns a *domain.ValidationError enumerating every violation.
//
// Normalisation: symbol is trimmed and upper-cased; a missing validity
// defaults to IOC for market orders and GTC for everything else, matching the
// broker's own defaulting.
func (v *Validator) Validate(req domain.OrderRequest) (domain.OrderRequest, error) {
	var fields []domain.FieldError
	add := func(field, reason string) {
		fields = append(fields, domain.FieldError{Field: field, Reason: reason})
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		add("symbol", "must not be empty")
	}

	if !req.Type.Valid() {
		add("order_type", "must be one of market, limit, stop, stop_limit")
	}
	if !req.Side.Valid() {
		add("side", "must be buy or sell")
	}
	if req.Quantity <= 0 {
		add("quantity", "must be positive")
	}

	switch req.Type {
	case domain.OrderTypeLimit:
		if req.Price <= 0 {
			add("price", "required for limit orders")
		}
	case domain.OrderTypeStop:
		if req.StopPrice <= 0 {
			add("stop_price", "required for stop orders")
		}
	case domain.OrderTypeStopLimit:
		if req.Price <= 0 {
			add("price", "required for stop_limit orders")
		}
		if req.StopPrice <= 0 {
			add("stop_price", "required for stop_limit orders")
		}
	}

	if req.StopLoss != 0 {
		if req.StopLoss < 0 {
			add("stop_loss", "must be positive")
		}
		if req.StopLossType == "" {
			add("stop_loss_type", "required when stop_loss is set")
		} else if !req.StopLossType.Valid() {
			add("stop_loss_type", "must be one of absolute, offset, trailingOffset")
		}
	} else if req.StopLossType != "" {
		add("stop_loss", "required when stop_loss_type is set")
	}

	if req.TakeProfit != 0 {
		if req.TakeProfit < 0 {
			add("take_profit", "must be positive")
		}
		if req.TakeProfitType == "" {
			add("take_profit_type", "required when take_profit is set")
		} else if !req.TakeProfitType.Valid() {
			add("take_profit_type", "must be absolute or offset")
		}
	} else if req.TakeProfitType != "" {
		add("take_profit", "required when take_profit_type is set")
	}

	if req.Validity == "" {
		if req.Type == domain.OrderTypeMarket {
			req.Validity = domain.ValidityIOC
		} else {
			req.Validity = domain.ValidityGTC
		}
	} else if !req.Validity.Valid() {
		add("validity", "must be one of GTC, IOC, FOK")
	}

	if len(fields) > 0 {
		return domain.OrderRequest{}, domain.NewValidationError(fields)
	}
	return req, nil
}
