package services

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
	"github.com/bytefinance/backend/internal/store"
)

func zar(major string) money.Money { return money.MustParse(major, "ZAR") }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	accounts *store.MemoryAccountStore
	ledger   *store.MemoryLedger
	service  *LedgerService
}

func newFixture(t *testing.T, opts ...LedgerOption) *fixture {
	t.Helper()
	f := &fixture{
		accounts: store.NewMemoryAccountStore(),
		ledger:   store.NewMemoryLedger(),
	}
	f.service = NewLedgerService(f.accounts, f.ledger, testLogger(), opts...)
	return f
}

// open creates an account funded through a deposit command.
func (f *fixture) open(t *testing.T, userID, wallet string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.service.OpenAccount(ctx, userID, "ZAR")
	require.NoError(t, err)
	if wallet == "" {
		return
	}
	res, err := f.service.Submit(ctx, userID, models.Command{
		Kind:           models.KindDeposit,
		Amount:         zar(wallet),
		IdempotencyKey: "fund-" + userID,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusApplied, res.Status)
}

func (f *fixture) wallet(t *testing.T, userID string) int64 {
	t.Helper()
	account, err := f.accounts.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return account.WalletBalance.Amount()
}

func buy(symbol, qty, price, key string) models.Command {
	return models.Command{
		Kind:           models.KindStockBuy,
		Symbol:         symbol,
		Quantity:       decimal.RequireFromString(qty),
		UnitPrice:      zar(price),
		IdempotencyKey: key,
	}
}

func sell(symbol, qty, price, key string) models.Command {
	cmd := buy(symbol, qty, price, key)
	cmd.Kind = models.KindStockSell
	return cmd
}
