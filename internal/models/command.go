package models

import (
	"github.com/bytefinance/backend/internal/money"
	"github.com/shopspring/decimal"
)

// Command is one user intent submitted to the ledger service. The idempotency key
// is generated once per intent and reused verbatim on retry.
type Command struct {
	Kind           EntryKind       `json:"kind" validate:"required,oneof=transfer_out transfer_in deposit stock_buy stock_sell savings_deposit savings_withdrawal"`
	Amount         money.Money     `json:"amount"`
	Counterparty   string          `json:"counterparty,omitempty" validate:"max=200"`
	Symbol         string          `json:"symbol,omitempty" validate:"omitempty,max=12,alphanum"`
	Quantity       decimal.Decimal `json:"quantity,omitzero"`
	UnitPrice      money.Money     `json:"unit_price,omitzero"`
	IdempotencyKey string          `json:"idempotency_key" validate:"required,max=128"`
}

type CommandStatus string

const (
	StatusApplied           CommandStatus = "applied"
	StatusFailed            CommandStatus = "failed"
	StatusInsufficientFunds CommandStatus = "insufficient_funds"
	StatusAlreadyApplied    CommandStatus = "already_applied"
	StatusReversed          CommandStatus = "reversed"
	// StatusPending means the outcome is unknown; retry with the same key or poll.
	StatusPending CommandStatus = "pending"
)

type CommandResult struct {
	Status  CommandStatus `json:"status"`
	EntryID string        `json:"entry_id,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// ResultFromEntry maps a stored entry to the result a replay reports.
func ResultFromEntry(e *LedgerEntry) *CommandResult {
	res := &CommandResult{EntryID: e.ID, Reason: e.FailureReason}
	switch e.Status {
	case EntryApplied:
		res.Status = StatusApplied
	case EntryReversed:
		res.Status = StatusReversed
	case EntryFailed:
		if e.FailureReason == ReasonInsufficientFunds {
			res.Status = StatusInsufficientFunds
		} else {
			res.Status = StatusFailed
		}
	default:
		res.Status = StatusPending
	}
	return res
}
