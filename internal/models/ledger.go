package models

import (
	"time"

	"github.com/bytefinance/backend/internal/money"
	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	KindTransferOut       EntryKind = "transfer_out"
	KindTransferIn        EntryKind = "transfer_in"
	KindDeposit           EntryKind = "deposit"
	KindStockBuy          EntryKind = "stock_buy"
	KindStockSell         EntryKind = "stock_sell"
	KindSavingsDeposit    EntryKind = "savings_deposit"
	KindSavingsWithdrawal EntryKind = "savings_withdrawal"
)

func (k EntryKind) Valid() bool {
	switch k {
	case KindTransferOut, KindTransferIn, KindDeposit, KindStockBuy, KindStockSell,
		KindSavingsDeposit, KindSavingsWithdrawal:
		return true
	}
	return false
}

func (k EntryKind) IsStock() bool {
	return k == KindStockBuy || k == KindStockSell
}

// Inverse is the kind of the compensating entry that undoes k.
func (k EntryKind) Inverse() EntryKind {
	switch k {
	case KindTransferOut:
		return KindTransferIn
	case KindTransferIn, KindDeposit:
		return KindTransferOut
	case KindStockBuy:
		return KindStockSell
	case KindStockSell:
		return KindStockBuy
	case KindSavingsDeposit:
		return KindSavingsWithdrawal
	case KindSavingsWithdrawal:
		return KindSavingsDeposit
	}
	return k
}

type EntryStatus string

const (
	EntryPending  EntryStatus = "pending"
	EntryApplied  EntryStatus = "applied"
	EntryFailed   EntryStatus = "failed"
	EntryReversed EntryStatus = "reversed"
)

func (s EntryStatus) Terminal() bool {
	return s == EntryApplied || s == EntryFailed || s == EntryReversed
}

// Failure reasons recorded on failed entries.
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonTimedOut          = "timed_out"
	ReasonNotApplied        = "not_applied"
)

// LedgerEntry is one balance-affecting event. Amount, Kind and IdempotencyKey
// never change after Append; Status changes once.
type LedgerEntry struct {
	ID              string          `json:"entry_id" db:"entry_id"`
	Seq             int64           `json:"seq" db:"seq"`
	IdempotencyKey  string          `json:"idempotency_key" db:"idempotency_key"`
	UserID          string          `json:"user_id" db:"user_id"`
	Kind            EntryKind       `json:"kind" db:"kind"`
	Amount          money.Money     `json:"amount" db:"amount"`
	Counterparty    string          `json:"counterparty,omitempty" db:"counterparty"`
	Symbol          string          `json:"symbol,omitempty" db:"symbol"`
	Quantity        decimal.Decimal `json:"quantity,omitzero" db:"quantity"`
	UnitPrice       money.Money     `json:"unit_price,omitzero" db:"unit_price"`
	ReversesEntryID string          `json:"reverses_entry_id,omitempty" db:"reverses_entry_id"`
	Status          EntryStatus     `json:"status" db:"status"`
	FailureReason   string          `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	AppliedAt       *time.Time      `json:"applied_at,omitempty" db:"applied_at"`
}

// Outcome is a terminal transition requested by Finalize.
type Outcome struct {
	Status EntryStatus
	Reason string
}
