package models

import (
	"github.com/bytefinance/backend/internal/money"
	"github.com/shopspring/decimal"
)

// Holding is a derived position; it can always be rebuilt from the ledger.
type Holding struct {
	Symbol      string          `json:"symbol"`
	Shares      decimal.Decimal `json:"shares"`
	AverageCost money.Money     `json:"average_cost"`
	LastPrice   money.Money     `json:"last_price"`
	MarketValue money.Money     `json:"market_value"`
}
