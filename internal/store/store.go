// Package store holds the two durable resources of the ledger service: the
// account balances and the append-only ledger entry log, plus loan applications.
// Each resource has an in-memory implementation and a PostgreSQL one.
package store

import (
	"context"
	"time"

	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
)

// AccountStore is the only shared mutable resource. Mutations against one
// account never interleave; reads see the latest committed snapshot.
type AccountStore interface {
	Open(ctx context.Context, userID, currency string) (*models.Account, error)
	GetBalance(ctx context.Context, userID string) (*models.Account, error)
	// Adjust adds delta to field. It fails with ErrInsufficientFunds when the
	// result would be negative and with ErrAlreadyApplied when key was used before.
	Adjust(ctx context.Context, userID string, field models.BalanceField, delta money.Money, key string) (*models.Account, error)
	// Move shifts amount between two fields of the same account in one adjustment.
	Move(ctx context.Context, userID string, from, to models.BalanceField, amount money.Money, key string) (*models.Account, error)
	WasApplied(ctx context.Context, userID, key string) (bool, error)
	SetSavingsGoal(ctx context.Context, userID string, goal *money.Money) (*models.Account, error)
	Archive(ctx context.Context, userID string) error
}

// LedgerLog is append/finalize-only. Entries are never deleted or edited
// beyond their single status transition.
type LedgerLog interface {
	// Append stores a pending entry. On a repeated idempotency key it returns
	// the existing entry together with ErrDuplicateIdempotencyKey.
	Append(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error)
	Finalize(ctx context.Context, entryID string, outcome models.Outcome) (*models.LedgerEntry, error)
	Get(ctx context.Context, entryID string) (*models.LedgerEntry, error)
	GetByKey(ctx context.Context, key string) (*models.LedgerEntry, error)
	// ListForUser returns the user's entries in append order.
	ListForUser(ctx context.Context, userID string) ([]models.LedgerEntry, error)
	ListPending(ctx context.Context, olderThan time.Time) ([]models.LedgerEntry, error)
}

type LoanStore interface {
	Create(ctx context.Context, loan *models.LoanApplication) error
	Get(ctx context.Context, userID, id string) (*models.LoanApplication, error)
	ListForUser(ctx context.Context, userID string) ([]models.LoanApplication, error)
	// UpdateStatus moves a loan from one status to the next only if it is still in from.
	UpdateStatus(ctx context.Context, userID, id string, from, to models.LoanStatus) (*models.LoanApplication, error)
}
