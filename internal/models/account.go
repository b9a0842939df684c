package models

import (
	"time"

	"github.com/bytefinance/backend/internal/money"
	"github.com/shopspring/decimal"
)

// BalanceField names a balance column that Adjust may touch.
type BalanceField string

const (
	FieldWallet  BalanceField = "wallet"
	FieldSavings BalanceField = "savings"
)

func (f BalanceField) Valid() bool {
	return f == FieldWallet || f == FieldSavings
}

type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountArchived AccountStatus = "archived"
)

type Account struct {
	UserID         string        `json:"user_id" db:"user_id"`
	Currency       string        `json:"currency" db:"currency"`
	WalletBalance  money.Money   `json:"wallet_balance" db:"wallet_balance"`   // in cents
	SavingsBalance money.Money   `json:"savings_balance" db:"savings_balance"` // in cents
	SavingsGoal    *money.Money  `json:"savings_goal,omitempty" db:"savings_goal"`
	Status         AccountStatus `json:"status" db:"status"`
	Version        int64         `json:"version" db:"version"` // for optimistic locking
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// Balance returns the current value of a balance field.
func (a *Account) Balance(field BalanceField) money.Money {
	if field == FieldSavings {
		return a.SavingsBalance
	}
	return a.WalletBalance
}

// SetBalance overwrites a balance field. Only stores call this.
func (a *Account) SetBalance(field BalanceField, value money.Money) {
	if field == FieldSavings {
		a.SavingsBalance = value
		return
	}
	a.WalletBalance = value
}

// AccountSnapshot is the dashboard projection of an account.
type AccountSnapshot struct {
	Account
	InvestmentBalance money.Money      `json:"investment_balance"`
	NetWorth          money.Money      `json:"net_worth"`
	SavingsProgress   *decimal.Decimal `json:"savings_progress_pct,omitempty"`
}
