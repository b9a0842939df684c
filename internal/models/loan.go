package models

import (
	"time"

	"github.com/bytefinance/backend/internal/money"
)

type LoanType string

const (
	LoanPersonal  LoanType = "personal"
	LoanVehicle   LoanType = "vehicle"
	LoanHome      LoanType = "home"
	LoanBusiness  LoanType = "business"
	LoanEducation LoanType = "education"
)

type EmploymentStatus string

const (
	EmploymentEmployed     EmploymentStatus = "employed"
	EmploymentSelfEmployed EmploymentStatus = "self_employed"
	EmploymentUnemployed   EmploymentStatus = "unemployed"
	EmploymentStudent      EmploymentStatus = "student"
	EmploymentPensioner    EmploymentStatus = "pensioner"
)

type LoanStatus string

const (
	LoanDraft       LoanStatus = "draft"
	LoanSubmitted   LoanStatus = "submitted"
	LoanUnderReview LoanStatus = "under_review"
	LoanApproved    LoanStatus = "approved"
	LoanDeclined    LoanStatus = "declined"
	LoanWithdrawn   LoanStatus = "withdrawn"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanDraft:       {LoanSubmitted, LoanWithdrawn},
	LoanSubmitted:   {LoanUnderReview, LoanWithdrawn},
	LoanUnderReview: {LoanApproved, LoanDeclined, LoanWithdrawn},
}

// CanTransition reports whether status may move from s to next. Statuses only
// move forward; withdrawal is the one explicit exit before a decision.
func (s LoanStatus) CanTransition(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type LoanApplication struct {
	ID                    string           `json:"id" db:"id"`
	UserID                string           `json:"user_id" db:"user_id"`
	LoanType              LoanType         `json:"loan_type" db:"loan_type"`
	AmountRequested       money.Money      `json:"amount_requested" db:"amount_requested"`
	RepaymentPeriodMonths int              `json:"repayment_period_months" db:"repayment_period_months"`
	MonthlyIncome         money.Money      `json:"monthly_income" db:"monthly_income"`
	EmploymentStatus      EmploymentStatus `json:"employment_status" db:"employment_status"`
	Purpose               string           `json:"purpose" db:"purpose"`
	Status                LoanStatus       `json:"status" db:"status"`
	Provider              string           `json:"provider,omitempty" db:"provider"`
	CreatedAt             time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at" db:"updated_at"`
}

// LoanQuote is the output of the repayment calculator.
type LoanQuote struct {
	Principal      money.Money `json:"principal"`
	MonthlyPayment money.Money `json:"monthly_payment"`
	TotalPayment   money.Money `json:"total_payment"`
	TotalInterest  money.Money `json:"total_interest"`
	Months         int         `json:"months"`
}
