package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/kterrell/tradegate/internal/domain"
)

// maintenanceMarginRate is the fraction of gross position value counted as
// used margin in the account summary.
const maintenanceMarginRate = 0.01

// AccountService exposes broker accounts and a derived risk summary.
type AccountService struct {
	broker domain.BrokerGateway
	logger *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(broker domain.BrokerGateway, logger *slog.Logger) *AccountService {
	return &AccountService{
		broker: broker,
		logger: logger.With(slog.String("component", "account_service")),
	}
}

// ListAccounts returns the raw broker account rows.
func (s *AccountService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := fetchRetry(ctx, s.broker.FetchAccounts)
	if err != nil {
		return nil, fmt.Errorf("account_service: list accounts: %w", err)
	}
	return accounts, nil
}

// Details computes the margin summary for the session account: equity is
// balance plus unrealised P&L across open positions, margin used is the
// gross position value at the maintenance rate, and margin level is equity
// over margin used as a percentage (zero when no margin is in use).
func (s *AccountService) Details(ctx context.Context) (domain.AccountDetails, error) {
	accounts, err := fetchRetry(ctx, s.broker.FetchAccounts)
	if err != nil {
		return domain.AccountDetails{}, fmt.Errorf("account_service: fetch accounts: %w", err)
	}
	if len(accounts) == 0 {
		return domain.AccountDetails{}, fmt.Errorf("account_service: details: no accounts: %w", domain.ErrNotFound)
	}
	acct := accounts[0]

	positions, err := fetchRetry(ctx, s.broker.FetchPositions)
	if err != nil {
		return domain.AccountDetails{}, fmt.Errorf("account_service: fetch positions: %w", err)
	}

	var unrealized, positionsValue float64
	for _, pos := range positions {
		unrealized += pos.UnrealizedPnL
		positionsValue += math.Abs(pos.Quantity * pos.EntryPrice)
	}

	equity := acct.Balance + unrealized
	marginUsed := positionsValue * maintenanceMarginRate
	details := domain.AccountDetails{
		AccountID:       acct.ID,
		Balance:         acct.Balance,
		UnrealizedPnL:   unrealized,
		Equity:          equity,
		PositionsValue:  positionsValue,
		MarginUsed:      marginUsed,
		MarginAvailable: equity - marginUsed,
		OpenPositions:   len(positions),
	}
	if marginUsed > 0 {
		details.MarginLevel = equity / marginUsed * 100
	}
	return details, nil
}

// BrokerInfo reports the configured broker session for diagnostics.
func (s *AccountService) BrokerInfo(ctx context.Context) (domain.BrokerInfo, error) {
	info, err := s.broker.Info(ctx)
	if err != nil {
		return domain.BrokerInfo{}, fmt.Errorf("account_service: broker info: %w", err)
	}
	return info, nil
}
