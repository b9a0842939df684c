package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
)

const accountColumns = `user_id, currency, wallet_balance, savings_balance, savings_goal, status, version, created_at, updated_at`

// PostgresAccountStore locks the account row for every mutation and records
// each applied idempotency key in account_adjustments inside the same transaction.
type PostgresAccountStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a               models.Account
		wallet, savings int64
		goal            sql.NullInt64
		status          string
	)
	if err := row.Scan(&a.UserID, &a.Currency, &wallet, &savings, &goal, &status, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.WalletBalance = money.New(wallet, a.Currency)
	a.SavingsBalance = money.New(savings, a.Currency)
	if goal.Valid {
		g := money.New(goal.Int64, a.Currency)
		a.SavingsGoal = &g
	}
	a.Status = models.AccountStatus(status)
	return &a, nil
}

func balanceColumn(field models.BalanceField) string {
	if field == models.FieldSavings {
		return "savings_balance"
	}
	return "wallet_balance"
}

func (s *PostgresAccountStore) Open(ctx context.Context, userID, currency string) (*models.Account, error) {
	if !money.IsKnownCurrency(currency) {
		return nil, apperrors.NewValidationError("currency", fmt.Sprintf("unknown currency %q", currency))
	}
	now := s.now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (user_id, currency, wallet_balance, savings_balance, status, version, created_at, updated_at)
		VALUES ($1, $2, 0, 0, $3, 1, $4, $4)
		RETURNING `+accountColumns,
		userID, currency, string(models.AccountActive), now)

	account, err := scanAccount(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apperrors.ErrAccountAlreadyExists
		}
		return nil, apperrors.Unavailable("open account", err)
	}
	return account, nil
}

func (s *PostgresAccountStore) GetBalance(ctx context.Context, userID string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Unavailable("get balance", err)
	}
	return account, nil
}

func (s *PostgresAccountStore) lockAccount(ctx context.Context, tx *sql.Tx, userID string) (*models.Account, error) {
	account, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Unavailable("lock account", err)
	}
	return account, nil
}

// recordAdjustment claims key for the account. A conflict means the key was already applied.
func (s *PostgresAccountStore) recordAdjustment(ctx context.Context, tx *sql.Tx, userID, key, field string, delta int64) error {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO account_adjustments (user_id, idempotency_key, field, delta, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING`,
		userID, key, field, delta, s.now().UTC())
	if err != nil {
		return apperrors.Unavailable("record adjustment", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Unavailable("record adjustment", err)
	}
	if rows == 0 {
		return apperrors.ErrAlreadyApplied
	}
	return nil
}

func (s *PostgresAccountStore) writeBalances(ctx context.Context, tx *sql.Tx, account *models.Account) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET wallet_balance = $1, savings_balance = $2, version = version + 1, updated_at = $3
		WHERE user_id = $4 AND version = $5`,
		account.WalletBalance.Amount(), account.SavingsBalance.Amount(), s.now().UTC(), account.UserID, account.Version)
	if err != nil {
		return apperrors.Unavailable("update balance", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Unavailable("update balance", err)
	}
	if rows == 0 {
		return apperrors.Unavailable("update balance", fmt.Errorf("optimistic lock failed for account %s", account.UserID))
	}
	account.Version++
	return nil
}

func (s *PostgresAccountStore) Adjust(ctx context.Context, userID string, field models.BalanceField, delta money.Money, key string) (*models.Account, error) {
	if !field.Valid() {
		return nil, apperrors.NewValidationError("field", fmt.Sprintf("unknown balance field %q", field))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Unavailable("begin", err)
	}
	defer tx.Rollback()

	account, err := s.lockAccount(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkMutable(account, delta.Currency()); err != nil {
		return nil, err
	}
	if err := s.recordAdjustment(ctx, tx, userID, key, string(field), delta.Amount()); err != nil {
		return nil, err
	}

	next, err := account.Balance(field).Add(delta)
	if err != nil {
		return nil, apperrors.WrapValidationError("amount", err)
	}
	if next.IsNegative() {
		return nil, apperrors.ErrInsufficientFunds
	}
	account.SetBalance(field, next)

	if err := s.writeBalances(ctx, tx, account); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.Unavailable("commit", err)
	}
	return account, nil
}

func (s *PostgresAccountStore) Move(ctx context.Context, userID string, from, to models.BalanceField, amount money.Money, key string) (*models.Account, error) {
	if err := validateMove(from, to, amount); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Unavailable("begin", err)
	}
	defer tx.Rollback()

	account, err := s.lockAccount(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkMutable(account, amount.Currency()); err != nil {
		return nil, err
	}
	if err := s.recordAdjustment(ctx, tx, userID, key, string(from)+">"+string(to), amount.Amount()); err != nil {
		return nil, err
	}

	source, err := account.Balance(from).Sub(amount)
	if err != nil {
		return nil, apperrors.WrapValidationError("amount", err)
	}
	if source.IsNegative() {
		return nil, apperrors.ErrInsufficientFunds
	}
	target, err := account.Balance(to).Add(amount)
	if err != nil {
		return nil, apperrors.WrapValidationError("amount", err)
	}
	account.SetBalance(from, source)
	account.SetBalance(to, target)

	if err := s.writeBalances(ctx, tx, account); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.Unavailable("commit", err)
	}
	return account, nil
}

func (s *PostgresAccountStore) WasApplied(ctx context.Context, userID, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM account_adjustments WHERE user_id = $1 AND idempotency_key = $2)`,
		userID, key).Scan(&exists)
	if err != nil {
		return false, apperrors.Unavailable("check adjustment", err)
	}
	return exists, nil
}

func (s *PostgresAccountStore) SetSavingsGoal(ctx context.Context, userID string, goal *money.Money) (*models.Account, error) {
	current, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	var goalArg sql.NullInt64
	if goal != nil {
		if err := checkMutable(current, goal.Currency()); err != nil {
			return nil, err
		}
		if goal.IsNegative() {
			return nil, apperrors.NewValidationError("savings_goal", "must not be negative")
		}
		goalArg = sql.NullInt64{Int64: goal.Amount(), Valid: true}
	}

	account, err := scanAccount(s.db.QueryRowContext(ctx, `
		UPDATE accounts SET savings_goal = $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND status = 'active'
		RETURNING `+accountColumns,
		goalArg, s.now().UTC(), userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrAccountArchived
		}
		return nil, apperrors.Unavailable("set savings goal", err)
	}
	return account, nil
}

func (s *PostgresAccountStore) Archive(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET status = 'archived', version = version + 1, updated_at = $1 WHERE user_id = $2`,
		s.now().UTC(), userID)
	if err != nil {
		return apperrors.Unavailable("archive account", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Unavailable("archive account", err)
	}
	if rows == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}
