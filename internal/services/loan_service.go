package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
	"github.com/bytefinance/backend/internal/store"
)

// LoanApplicationRequest is the application form. Submit false keeps it as a draft.
type LoanApplicationRequest struct {
	LoanType              models.LoanType         `json:"loan_type" validate:"required,oneof=personal vehicle home business education"`
	AmountRequested       money.Money             `json:"amount_requested"`
	RepaymentPeriodMonths int                     `json:"repayment_period_months" validate:"required,min=1,max=360"`
	MonthlyIncome         money.Money             `json:"monthly_income"`
	EmploymentStatus      models.EmploymentStatus `json:"employment_status" validate:"required,oneof=employed self_employed unemployed student pensioner"`
	Purpose               string                  `json:"purpose" validate:"required,max=500"`
	Provider              string                  `json:"provider,omitempty" validate:"max=100"`
	Submit                bool                    `json:"submit"`
}

// LoanService records applications. Decisions are made outside this system and
// arrive as status transitions.
type LoanService struct {
	store     store.LoanStore
	validator *ValidationHelper
	audit     *AuditLogger
	log       *logrus.Logger
	newID     func() string
	now       func() time.Time
}

func NewLoanService(loans store.LoanStore, log *logrus.Logger) *LoanService {
	return &LoanService{
		store:     loans,
		validator: NewValidationHelper(),
		audit:     NewAuditLogger(log),
		log:       log,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

func (s *LoanService) Apply(ctx context.Context, userID string, req LoanApplicationRequest) (*models.LoanApplication, error) {
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}
	if !req.AmountRequested.IsPositive() {
		return nil, apperrors.NewValidationError("amount_requested", "must be greater than zero")
	}
	if req.MonthlyIncome.IsNegative() {
		return nil, apperrors.NewValidationError("monthly_income", "must not be negative")
	}
	if req.MonthlyIncome.Currency() != req.AmountRequested.Currency() {
		return nil, apperrors.WrapValidationError("monthly_income", money.ErrCurrencyMismatch)
	}

	status := models.LoanDraft
	if req.Submit {
		status = models.LoanSubmitted
	}
	now := s.now().UTC()
	loan := &models.LoanApplication{
		ID:                    s.newID(),
		UserID:                userID,
		LoanType:              req.LoanType,
		AmountRequested:       req.AmountRequested,
		RepaymentPeriodMonths: req.RepaymentPeriodMonths,
		MonthlyIncome:         req.MonthlyIncome,
		EmploymentStatus:      req.EmploymentStatus,
		Purpose:               req.Purpose,
		Status:                status,
		Provider:              req.Provider,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.store.Create(ctx, loan); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"loan_id": loan.ID,
		"status":  loan.Status,
	}).Info("loan application created")
	return loan, nil
}

func (s *LoanService) Get(ctx context.Context, userID, id string) (*models.LoanApplication, error) {
	return s.store.Get(ctx, userID, id)
}

func (s *LoanService) List(ctx context.Context, userID string) ([]models.LoanApplication, error) {
	return s.store.ListForUser(ctx, userID)
}

// Transition applies an externally decided status change. Statuses only move
// forward; withdrawn is allowed until a decision is made.
func (s *LoanService) Transition(ctx context.Context, userID, id string, to models.LoanStatus) (*models.LoanApplication, error) {
	current, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidLoanTransition, current.Status, to)
	}

	updated, err := s.store.UpdateStatus(ctx, userID, id, current.Status, to)
	if err != nil {
		return nil, err
	}
	s.audit.LogLoanTransition(updated, current.Status)
	return updated, nil
}

// Quote computes the fixed monthly repayment of an amortizing loan:
// P*r*(1+r)^n / ((1+r)^n - 1) with r the monthly rate. A zero rate spreads the
// principal evenly.
func Quote(principal money.Money, annualRatePct decimal.Decimal, months int) (*models.LoanQuote, error) {
	if !principal.IsPositive() {
		return nil, apperrors.NewValidationError("principal", "must be greater than zero")
	}
	if months < 1 || months > 360 {
		return nil, apperrors.NewValidationError("months", "must be between 1 and 360")
	}
	if annualRatePct.IsNegative() || annualRatePct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, apperrors.NewValidationError("annual_rate", "must be between 0 and 100")
	}

	p := principal.Decimal()
	n := decimal.NewFromInt(int64(months))
	var monthly decimal.Decimal
	if annualRatePct.IsZero() {
		monthly = p.Div(n)
	} else {
		r := annualRatePct.Div(decimal.NewFromInt(1200))
		growth := decimal.NewFromInt(1).Add(r).Pow(n)
		monthly = p.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))
	}

	currency := principal.Currency()
	payment := money.FromDecimal(monthly, currency)
	total := money.New(payment.Amount()*int64(months), currency)
	interest, err := total.Sub(principal)
	if err != nil {
		return nil, err
	}
	return &models.LoanQuote{
		Principal:      principal,
		MonthlyPayment: payment,
		TotalPayment:   total,
		TotalInterest:  interest,
		Months:         months,
	}, nil
}
