package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
)

const loanColumns = `id, user_id, loan_type, amount_requested, monthly_income, currency, repayment_period_months, employment_status, purpose, status, provider, created_at, updated_at`

type PostgresLoanStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLoanStore(db *sql.DB) *PostgresLoanStore {
	return &PostgresLoanStore{db: db, now: time.Now}
}

func scanLoan(row rowScanner) (*models.LoanApplication, error) {
	var (
		l                                      models.LoanApplication
		loanType, employment, status, currency string
		amount, income                         int64
		provider                               sql.NullString
	)
	err := row.Scan(&l.ID, &l.UserID, &loanType, &amount, &income, &currency, &l.RepaymentPeriodMonths,
		&employment, &l.Purpose, &status, &provider, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.LoanType = models.LoanType(loanType)
	l.EmploymentStatus = models.EmploymentStatus(employment)
	l.Status = models.LoanStatus(status)
	l.AmountRequested = money.New(amount, currency)
	l.MonthlyIncome = money.New(income, currency)
	l.Provider = provider.String
	return &l, nil
}

func (s *PostgresLoanStore) Create(ctx context.Context, loan *models.LoanApplication) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loan_applications (id, user_id, loan_type, amount_requested, monthly_income, currency,
			repayment_period_months, employment_status, purpose, status, provider, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		loan.ID, loan.UserID, string(loan.LoanType), loan.AmountRequested.Amount(), loan.MonthlyIncome.Amount(),
		loan.AmountRequested.Currency(), loan.RepaymentPeriodMonths, string(loan.EmploymentStatus), loan.Purpose,
		string(loan.Status), nullString(loan.Provider), now)
	if err != nil {
		return apperrors.Unavailable("create loan application", err)
	}
	loan.CreatedAt, loan.UpdatedAt = now, now
	return nil
}

func (s *PostgresLoanStore) Get(ctx context.Context, userID, id string) (*models.LoanApplication, error) {
	loan, err := scanLoan(s.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loan_applications WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrLoanNotFound
		}
		return nil, apperrors.Unavailable("get loan application", err)
	}
	return loan, nil
}

func (s *PostgresLoanStore) ListForUser(ctx context.Context, userID string) ([]models.LoanApplication, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loan_applications WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, apperrors.Unavailable("list loan applications", err)
	}
	defer rows.Close()

	var loans []models.LoanApplication
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, apperrors.Unavailable("scan loan application", err)
		}
		loans = append(loans, *loan)
	}
	return loans, rows.Err()
}

func (s *PostgresLoanStore) UpdateStatus(ctx context.Context, userID, id string, from, to models.LoanStatus) (*models.LoanApplication, error) {
	loan, err := scanLoan(s.db.QueryRowContext(ctx, `
		UPDATE loan_applications SET status = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4 AND status = $5
		RETURNING `+loanColumns,
		string(to), s.now().UTC(), id, userID, string(from)))
	if err == nil {
		return loan, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Unavailable("update loan status", err)
	}
	// either missing or moved concurrently
	if _, getErr := s.Get(ctx, userID, id); getErr != nil {
		return nil, getErr
	}
	return nil, apperrors.ErrInvalidLoanTransition
}
