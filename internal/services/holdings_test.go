package services

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
)

func trade(kind models.EntryKind, symbol, qty, price string) models.LedgerEntry {
	q := decimal.RequireFromString(qty)
	p := zar(price)
	return models.LedgerEntry{
		ID:        fmt.Sprintf("%s-%s-%s-%s", kind, symbol, qty, price),
		Kind:      kind,
		Symbol:    symbol,
		Quantity:  q,
		UnitPrice: p,
		Amount:    p.MulQuantity(q),
		Status:    models.EntryApplied,
	}
}

func TestComputeHoldings(t *testing.T) {
	t.Run("weighted average over buys", func(t *testing.T) {
		p, err := ComputeHoldings([]models.LedgerEntry{
			trade(models.KindStockBuy, "SHP", "10", "245.50"),
			trade(models.KindStockBuy, "SHP", "5", "250.00"),
		})
		require.NoError(t, err)

		h := p.Holdings()
		require.Len(t, h, 1)
		assert.True(t, h[0].Shares.Equal(decimal.NewFromInt(15)))
		assert.Equal(t, "R247.00", h[0].AverageCost.String())
		assert.Equal(t, int64(375000), h[0].MarketValue.Amount())
	})

	t.Run("ignores entries that are not applied stock trades", func(t *testing.T) {
		failed := trade(models.KindStockBuy, "NPN", "3", "100.00")
		failed.Status = models.EntryFailed
		pending := trade(models.KindStockBuy, "NPN", "3", "100.00")
		pending.Status = models.EntryPending

		p, err := ComputeHoldings([]models.LedgerEntry{
			failed,
			pending,
			{Kind: models.KindDeposit, Amount: zar("100.00"), Status: models.EntryApplied},
		})
		require.NoError(t, err)
		assert.Empty(t, p.Holdings())
	})

	t.Run("closed positions are dropped and restart at zero cost", func(t *testing.T) {
		p, err := ComputeHoldings([]models.LedgerEntry{
			trade(models.KindStockBuy, "SHP", "4", "100.00"),
			trade(models.KindStockSell, "SHP", "4", "120.00"),
		})
		require.NoError(t, err)
		assert.Empty(t, p.Holdings())
		assert.True(t, p.Shares("SHP").IsZero())

		p, err = FoldHoldings(p, []models.LedgerEntry{trade(models.KindStockBuy, "SHP", "2", "90.00")})
		require.NoError(t, err)
		assert.Equal(t, int64(9000), p["SHP"].AverageCost.Amount())
	})

	t.Run("overselling is an error", func(t *testing.T) {
		_, err := ComputeHoldings([]models.LedgerEntry{
			trade(models.KindStockBuy, "SHP", "1", "10.00"),
			trade(models.KindStockSell, "SHP", "2", "10.00"),
		})
		assert.ErrorIs(t, err, apperrors.ErrInsufficientShares)
	})

	t.Run("fractional shares", func(t *testing.T) {
		p, err := ComputeHoldings([]models.LedgerEntry{
			trade(models.KindStockBuy, "ETF", "0.5", "100.00"),
			trade(models.KindStockBuy, "ETF", "0.25", "130.00"),
		})
		require.NoError(t, err)
		// (0.5*10000 + 0.25*13000) / 0.75 = 11000
		assert.Equal(t, int64(11000), p["ETF"].AverageCost.Amount())
	})

	t.Run("fold does not modify its input", func(t *testing.T) {
		prev, err := ComputeHoldings([]models.LedgerEntry{trade(models.KindStockBuy, "SHP", "1", "10.00")})
		require.NoError(t, err)
		_, err = FoldHoldings(prev, []models.LedgerEntry{trade(models.KindStockBuy, "SHP", "1", "20.00")})
		require.NoError(t, err)
		assert.True(t, prev.Shares("SHP").Equal(decimal.NewFromInt(1)))
	})
}

func TestFoldEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	symbols := []string{"SHP", "NPN", "MTN"}
	held := map[string]int{}

	var entries []models.LedgerEntry
	for i := 0; i < 200; i++ {
		symbol := symbols[rng.Intn(len(symbols))]
		price := fmt.Sprintf("%d.%02d", 50+rng.Intn(200), rng.Intn(100))
		e := trade(models.KindStockBuy, symbol, fmt.Sprint(1+rng.Intn(20)), price)
		if held[symbol] > 0 && rng.Intn(3) == 0 {
			qty := 1 + rng.Intn(held[symbol])
			e = trade(models.KindStockSell, symbol, fmt.Sprint(qty), price)
			held[symbol] -= qty
		} else {
			held[symbol] += int(e.Quantity.IntPart())
		}
		if rng.Intn(10) == 0 {
			e.Status = models.EntryFailed
			if e.Kind == models.KindStockSell {
				held[symbol] += int(e.Quantity.IntPart())
			} else {
				held[symbol] -= int(e.Quantity.IntPart())
			}
		}
		entries = append(entries, e)
	}

	full, err := ComputeHoldings(entries)
	require.NoError(t, err)
	for symbol, shares := range held {
		assert.True(t, full.Shares(symbol).Equal(decimal.NewFromInt(int64(shares))), symbol)
	}

	for split := 0; split <= len(entries); split += 7 {
		prefix, err := ComputeHoldings(entries[:split])
		require.NoError(t, err)
		incremental, err := FoldHoldings(prefix, entries[split:])
		require.NoError(t, err)
		assert.Equal(t, full.Holdings(), incremental.Holdings(), "split at %d", split)
	}

	// one entry at a time
	step := Portfolio{}
	for _, e := range entries {
		step, err = FoldHoldings(step, []models.LedgerEntry{e})
		require.NoError(t, err)
	}
	assert.Equal(t, full.Holdings(), step.Holdings())
}
