package services

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/store"
)

// QueryService serves read projections. It never takes account locks.
type QueryService struct {
	accounts store.AccountStore
	ledger   store.LedgerLog
	cache    HoldingsCache
	log      *logrus.Logger
}

func NewQueryService(accounts store.AccountStore, ledger store.LedgerLog, cache HoldingsCache, log *logrus.Logger) *QueryService {
	return &QueryService{
		accounts: accounts,
		ledger:   ledger,
		cache:    cache,
		log:      log,
	}
}

// GetLedger returns the user's entries in append order.
func (q *QueryService) GetLedger(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	if _, err := q.accounts.GetBalance(ctx, userID); err != nil {
		return nil, err
	}
	return q.ledger.ListForUser(ctx, userID)
}

// GetHoldings folds the ledger, or serves the cached fold when present. The
// generation is read before the ledger so a concurrent invalidation wins.
func (q *QueryService) GetHoldings(ctx context.Context, userID string) ([]models.Holding, error) {
	gen := int64(-1)
	if q.cache != nil {
		holdings, current, ok := q.cache.Get(ctx, userID)
		if ok {
			return holdings, nil
		}
		gen = current
	}

	entries, err := q.GetLedger(ctx, userID)
	if err != nil {
		return nil, err
	}
	portfolio, err := ComputeHoldings(entries)
	if err != nil {
		return nil, err
	}
	holdings := portfolio.Holdings()

	if q.cache != nil {
		q.cache.Set(ctx, userID, gen, holdings)
	}
	return holdings, nil
}

// GetAccountSnapshot is the dashboard view: balances, investment value derived
// from holdings, net worth and savings goal progress.
func (q *QueryService) GetAccountSnapshot(ctx context.Context, userID string) (*models.AccountSnapshot, error) {
	account, err := q.accounts.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, err := q.GetHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := &models.AccountSnapshot{
		Account:           *account,
		InvestmentBalance: MarketValue(holdings, account.Currency),
	}
	snapshot.NetWorth = account.WalletBalance
	if sum, err := snapshot.NetWorth.Add(account.SavingsBalance); err == nil {
		snapshot.NetWorth = sum
	}
	if sum, err := snapshot.NetWorth.Add(snapshot.InvestmentBalance); err == nil {
		snapshot.NetWorth = sum
	}

	if goal := account.SavingsGoal; goal != nil && goal.IsPositive() {
		pct := account.SavingsBalance.Decimal().
			Div(goal.Decimal()).
			Mul(decimal.NewFromInt(100)).
			Round(2)
		snapshot.SavingsProgress = &pct
	}
	return snapshot, nil
}
