package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/store"
)

func loanRequest() LoanApplicationRequest {
	return LoanApplicationRequest{
		LoanType:              models.LoanVehicle,
		AmountRequested:       zar("150000.00"),
		RepaymentPeriodMonths: 60,
		MonthlyIncome:         zar("25000.00"),
		EmploymentStatus:      models.EmploymentEmployed,
		Purpose:               "first car",
		Provider:              "Capitec",
	}
}

func TestLoanService_Apply(t *testing.T) {
	ctx := context.Background()
	svc := NewLoanService(store.NewMemoryLoanStore(), testLogger())
	svc.newID = func() string { return "loan-1" }
	svc.now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }

	t.Run("draft by default", func(t *testing.T) {
		loan, err := svc.Apply(ctx, "user-1", loanRequest())
		require.NoError(t, err)
		assert.Equal(t, "loan-1", loan.ID)
		assert.Equal(t, models.LoanDraft, loan.Status)

		got, err := svc.Get(ctx, "user-1", "loan-1")
		require.NoError(t, err)
		assert.Equal(t, loan.Purpose, got.Purpose)
	})

	t.Run("submitted on request", func(t *testing.T) {
		svc.newID = func() string { return "loan-2" }
		req := loanRequest()
		req.Submit = true
		loan, err := svc.Apply(ctx, "user-1", req)
		require.NoError(t, err)
		assert.Equal(t, models.LoanSubmitted, loan.Status)

		loans, err := svc.List(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, loans, 2)
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*LoanApplicationRequest)
			field  string
		}{
			{"unknown type", func(r *LoanApplicationRequest) { r.LoanType = "boat" }, "LoanType"},
			{"no purpose", func(r *LoanApplicationRequest) { r.Purpose = "" }, "Purpose"},
			{"period too long", func(r *LoanApplicationRequest) { r.RepaymentPeriodMonths = 600 }, "RepaymentPeriodMonths"},
			{"zero amount", func(r *LoanApplicationRequest) { r.AmountRequested = zar("0") }, "amount_requested"},
			{"negative income", func(r *LoanApplicationRequest) { r.MonthlyIncome = zar("-1.00") }, "monthly_income"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := loanRequest()
				tt.mutate(&req)
				_, err := svc.Apply(ctx, "user-1", req)

				var verr *apperrors.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.field, verr.Field)
			})
		}
	})
}

func TestLoanService_Transition(t *testing.T) {
	ctx := context.Background()
	svc := NewLoanService(store.NewMemoryLoanStore(), testLogger())
	svc.newID = func() string { return "loan-1" }

	_, err := svc.Apply(ctx, "user-1", loanRequest())
	require.NoError(t, err)

	steps := []models.LoanStatus{models.LoanSubmitted, models.LoanUnderReview, models.LoanApproved}
	for _, next := range steps {
		loan, err := svc.Transition(ctx, "user-1", "loan-1", next)
		require.NoError(t, err)
		assert.Equal(t, next, loan.Status)
	}

	_, err = svc.Transition(ctx, "user-1", "loan-1", models.LoanSubmitted)
	assert.ErrorIs(t, err, apperrors.ErrInvalidLoanTransition)

	_, err = svc.Transition(ctx, "user-1", "loan-1", models.LoanWithdrawn)
	assert.ErrorIs(t, err, apperrors.ErrInvalidLoanTransition)

	_, err = svc.Transition(ctx, "user-2", "loan-1", models.LoanWithdrawn)
	assert.ErrorIs(t, err, apperrors.ErrLoanNotFound)
}

func TestLoanService_Withdraw(t *testing.T) {
	ctx := context.Background()
	svc := NewLoanService(store.NewMemoryLoanStore(), testLogger())
	svc.newID = func() string { return "loan-1" }

	_, err := svc.Apply(ctx, "user-1", loanRequest())
	require.NoError(t, err)

	loan, err := svc.Transition(ctx, "user-1", "loan-1", models.LoanWithdrawn)
	require.NoError(t, err)
	assert.Equal(t, models.LoanWithdrawn, loan.Status)

	_, err = svc.Transition(ctx, "user-1", "loan-1", models.LoanSubmitted)
	assert.ErrorIs(t, err, apperrors.ErrInvalidLoanTransition)
}

func TestQuote(t *testing.T) {
	t.Run("amortized", func(t *testing.T) {
		q, err := Quote(zar("100000.00"), decimal.NewFromInt(12), 12)
		require.NoError(t, err)
		assert.Equal(t, int64(888488), q.MonthlyPayment.Amount())
		assert.Equal(t, int64(888488*12), q.TotalPayment.Amount())
		assert.Equal(t, int64(888488*12-10000000), q.TotalInterest.Amount())
		assert.Equal(t, 12, q.Months)
	})

	t.Run("zero rate", func(t *testing.T) {
		q, err := Quote(zar("1200.00"), decimal.Zero, 12)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), q.MonthlyPayment.Amount())
		assert.True(t, q.TotalInterest.IsZero())
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := Quote(zar("0"), decimal.NewFromInt(10), 12)
		assert.True(t, apperrors.IsValidationError(err))
		_, err = Quote(zar("100.00"), decimal.NewFromInt(-1), 12)
		assert.True(t, apperrors.IsValidationError(err))
		_, err = Quote(zar("100.00"), decimal.NewFromInt(10), 0)
		assert.True(t, apperrors.IsValidationError(err))
	})
}
