package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
)

const entryColumns = `seq, entry_id, idempotency_key, user_id, kind, amount, currency, counterparty, symbol, quantity, unit_price, reverses_entry_id, status, failure_reason, created_at, applied_at`

// PostgresLedger stores entries in ledger_entries. seq is a BIGSERIAL and
// defines the per-user order.
type PostgresLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var (
		e                        models.LedgerEntry
		kind, currency, status   string
		amount                   int64
		symbol, reverses, reason sql.NullString
		quantity                 decimal.NullDecimal
		unitPrice                sql.NullInt64
		appliedAt                sql.NullTime
	)
	err := row.Scan(&e.Seq, &e.ID, &e.IdempotencyKey, &e.UserID, &kind, &amount, &currency,
		&e.Counterparty, &symbol, &quantity, &unitPrice, &reverses, &status, &reason, &e.CreatedAt, &appliedAt)
	if err != nil {
		return nil, err
	}
	e.Kind = models.EntryKind(kind)
	e.Status = models.EntryStatus(status)
	e.Amount = money.New(amount, currency)
	e.Symbol = symbol.String
	e.ReversesEntryID = reverses.String
	e.FailureReason = reason.String
	if quantity.Valid {
		e.Quantity = quantity.Decimal
	}
	if unitPrice.Valid {
		e.UnitPrice = money.New(unitPrice.Int64, currency)
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		e.AppliedAt = &t
	}
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (l *PostgresLedger) Append(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	var unitPrice sql.NullInt64
	if !entry.UnitPrice.IsZero() {
		unitPrice = sql.NullInt64{Int64: entry.UnitPrice.Amount(), Valid: true}
	}
	quantity := decimal.NullDecimal{Decimal: entry.Quantity, Valid: !entry.Quantity.IsZero()}

	created, err := scanEntry(l.db.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (entry_id, idempotency_key, user_id, kind, amount, currency, counterparty,
			symbol, quantity, unit_price, reverses_entry_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', $12)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING `+entryColumns,
		id, entry.IdempotencyKey, entry.UserID, string(entry.Kind), entry.Amount.Amount(), entry.Amount.Currency(),
		entry.Counterparty, nullString(entry.Symbol), quantity, unitPrice, nullString(entry.ReversesEntryID),
		l.now().UTC()))
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Unavailable("append entry", err)
	}

	existing, err := l.GetByKey(ctx, entry.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return existing, apperrors.ErrDuplicateIdempotencyKey
}

func (l *PostgresLedger) Finalize(ctx context.Context, entryID string, outcome models.Outcome) (*models.LedgerEntry, error) {
	if !outcome.Status.Terminal() {
		return nil, apperrors.NewValidationError("status", "finalize requires a terminal status")
	}
	var appliedAt sql.NullTime
	if outcome.Status == models.EntryApplied {
		appliedAt = sql.NullTime{Time: l.now().UTC(), Valid: true}
	}

	updated, err := scanEntry(l.db.QueryRowContext(ctx, `
		UPDATE ledger_entries SET status = $1, failure_reason = $2, applied_at = $3
		WHERE entry_id = $4 AND status = 'pending'
		RETURNING `+entryColumns,
		string(outcome.Status), nullString(outcome.Reason), appliedAt, entryID))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Unavailable("finalize entry", err)
	}

	// Not pending any more: same outcome is a no-op, anything else is a conflict.
	existing, err := l.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if existing.Status != outcome.Status {
		return nil, apperrors.ErrConflictingFinalization
	}
	return existing, nil
}

func (l *PostgresLedger) getOne(ctx context.Context, query string, arg any) (*models.LedgerEntry, error) {
	e, err := scanEntry(l.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrEntryNotFound
		}
		return nil, apperrors.Unavailable("get entry", err)
	}
	return e, nil
}

func (l *PostgresLedger) Get(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	return l.getOne(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE entry_id = $1`, entryID)
}

func (l *PostgresLedger) GetByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	return l.getOne(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = $1`, key)
}

func (l *PostgresLedger) list(ctx context.Context, query string, args ...any) ([]models.LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Unavailable("list entries", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.Unavailable("scan entry", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("list entries", err)
	}
	return entries, nil
}

func (l *PostgresLedger) ListForUser(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	return l.list(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE user_id = $1 ORDER BY seq`, userID)
}

func (l *PostgresLedger) ListPending(ctx context.Context, olderThan time.Time) ([]models.LedgerEntry, error) {
	return l.list(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE status = 'pending' AND created_at < $1 ORDER BY seq`, olderThan)
}
