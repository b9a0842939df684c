package services

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
)

// Portfolio is the running state of the holdings fold, keyed by symbol.
// Positions that reach zero shares stay in the map so a later buy restarts
// from a zero average cost.
type Portfolio map[string]models.Holding

// ComputeHoldings folds a user's ledger from an empty portfolio.
func ComputeHoldings(entries []models.LedgerEntry) (Portfolio, error) {
	return FoldHoldings(Portfolio{}, entries)
}

// FoldHoldings applies entries, in ledger order, on top of prev. prev is not
// modified. Only applied stock entries move positions.
func FoldHoldings(prev Portfolio, entries []models.LedgerEntry) (Portfolio, error) {
	next := make(Portfolio, len(prev))
	for symbol, h := range prev {
		next[symbol] = h
	}

	for _, e := range entries {
		if !e.Kind.IsStock() || e.Status != models.EntryApplied {
			continue
		}
		h, err := applyTrade(next[e.Symbol], e)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		next[e.Symbol] = h
	}
	return next, nil
}

func applyTrade(h models.Holding, e models.LedgerEntry) (models.Holding, error) {
	price := e.UnitPrice
	if h.Symbol == "" {
		h = models.Holding{
			Symbol:      e.Symbol,
			Shares:      decimal.Zero,
			AverageCost: money.Zero(price.Currency()),
		}
	}
	if h.AverageCost.Currency() != price.Currency() {
		return h, money.ErrCurrencyMismatch
	}

	switch e.Kind {
	case models.KindStockBuy:
		shares := h.Shares.Add(e.Quantity)
		cost := h.Shares.Mul(decimal.NewFromInt(h.AverageCost.Amount())).
			Add(e.Quantity.Mul(decimal.NewFromInt(price.Amount())))
		h.AverageCost = money.New(cost.Div(shares).Round(0).IntPart(), price.Currency())
		h.Shares = shares
	case models.KindStockSell:
		if e.Quantity.GreaterThan(h.Shares) {
			return h, apperrors.ErrInsufficientShares
		}
		h.Shares = h.Shares.Sub(e.Quantity)
		if h.Shares.IsZero() {
			h.AverageCost = money.Zero(price.Currency())
		}
	}
	h.LastPrice = price
	h.MarketValue = price.MulQuantity(h.Shares)
	return h, nil
}

// Shares returns the shares held for symbol.
func (p Portfolio) Shares(symbol string) decimal.Decimal {
	if h, ok := p[symbol]; ok {
		return h.Shares
	}
	return decimal.Zero
}

// Holdings is the projection: open positions sorted by symbol.
func (p Portfolio) Holdings() []models.Holding {
	out := make([]models.Holding, 0, len(p))
	for _, h := range p {
		if h.Shares.IsPositive() {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// MarketValue sums the market value of open positions held in currency.
func MarketValue(holdings []models.Holding, currency string) money.Money {
	total := money.Zero(currency)
	for _, h := range holdings {
		if sum, err := total.Add(h.MarketValue); err == nil {
			total = sum
		}
	}
	return total
}
