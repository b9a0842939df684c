package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is idempotent; every statement can run on each start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id         TEXT PRIMARY KEY,
		currency        CHAR(3) NOT NULL,
		wallet_balance  BIGINT NOT NULL DEFAULT 0 CHECK (wallet_balance >= 0),
		savings_balance BIGINT NOT NULL DEFAULT 0 CHECK (savings_balance >= 0),
		savings_goal    BIGINT CHECK (savings_goal >= 0),
		status          TEXT NOT NULL DEFAULT 'active',
		version         BIGINT NOT NULL DEFAULT 1,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS account_adjustments (
		user_id         TEXT NOT NULL REFERENCES accounts (user_id),
		idempotency_key TEXT NOT NULL,
		field           TEXT NOT NULL,
		delta           BIGINT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, idempotency_key)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		seq               BIGSERIAL PRIMARY KEY,
		entry_id          TEXT NOT NULL UNIQUE,
		idempotency_key   TEXT NOT NULL UNIQUE,
		user_id           TEXT NOT NULL,
		kind              TEXT NOT NULL,
		amount            BIGINT NOT NULL CHECK (amount > 0),
		currency          CHAR(3) NOT NULL,
		counterparty      TEXT NOT NULL DEFAULT '',
		symbol            TEXT,
		quantity          NUMERIC(20, 8),
		unit_price        BIGINT,
		reverses_entry_id TEXT,
		status            TEXT NOT NULL,
		failure_reason    TEXT,
		created_at        TIMESTAMPTZ NOT NULL,
		applied_at        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_user_seq ON ledger_entries (user_id, seq)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_pending ON ledger_entries (created_at) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS loan_applications (
		id                      TEXT PRIMARY KEY,
		user_id                 TEXT NOT NULL,
		loan_type               TEXT NOT NULL,
		amount_requested        BIGINT NOT NULL,
		monthly_income          BIGINT NOT NULL,
		currency                CHAR(3) NOT NULL,
		repayment_period_months INTEGER NOT NULL,
		employment_status       TEXT NOT NULL,
		purpose                 TEXT NOT NULL,
		status                  TEXT NOT NULL,
		provider                TEXT,
		created_at              TIMESTAMPTZ NOT NULL,
		updated_at              TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
