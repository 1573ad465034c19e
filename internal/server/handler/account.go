package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kterrell/tradegate/internal/domain"
)

// AccountService defines the methods the account handler requires from the
// service layer.
type AccountService interface {
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	Details(ctx context.Context) (domain.AccountDetails, error)
	BrokerInfo(ctx context.Context) (domain.BrokerInfo, error)
}

// AccountHandler serves account and broker metadata endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and
// logger.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger,
	}
}

type listAccountsResponse struct {
	Accounts []domain.Account `json:"accounts"`
}

// ListAccounts returns the broker accounts visible to the configured
// credentials.
// GET /api/v1/accounts
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	if accounts == nil {
		accounts = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, listAccountsResponse{Accounts: accounts})
}

// AccountDetails returns computed account metrics: equity, margin used,
// margin available, and margin level.
// GET /api/v1/accounts/details
func (h *AccountHandler) AccountDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.accounts.Details(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// BrokerInfo returns the broker environment, the configured account, and the
// current connection status.
// GET /api/v1/broker
func (h *AccountHandler) BrokerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.accounts.BrokerInfo(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
