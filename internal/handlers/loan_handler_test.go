package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytefinance/backend/internal/models"
)

func loanForm(submit bool) map[string]any {
	return map[string]any{
		"loan_type":               "vehicle",
		"amount_requested":        zarJSON("150000.00"),
		"repayment_period_months": 60,
		"monthly_income":          zarJSON("32000.00"),
		"employment_status":       "employed",
		"purpose":                 "first car",
		"submit":                  submit,
	}
}

func TestLoanLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/users/alice/loans", loanForm(true))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var loan models.LoanApplication
	decode(t, rec, &loan)
	assert.Equal(t, models.LoanSubmitted, loan.Status)

	rec = s.do(t, http.MethodPost, "/api/v1/users/alice/loans/"+loan.ID+"/status", map[string]string{"status": "under_review"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/users/alice/loans/"+loan.ID+"/status", map[string]string{"status": "submitted"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/users/alice/loans/"+loan.ID+"/status", map[string]string{"status": "paid_out"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/users/alice/loans/"+loan.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &loan)
	assert.Equal(t, models.LoanUnderReview, loan.Status)

	rec = s.do(t, http.MethodGet, "/api/v1/users/bob/loans/"+loan.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/users/bob/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestLoanApply_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	form := loanForm(false)
	form["loan_type"] = "yacht"
	rec := s.do(t, http.MethodPost, "/api/v1/users/alice/loans", form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	form = loanForm(false)
	form["amount_requested"] = zarJSON("0.00")
	rec = s.do(t, http.MethodPost, "/api/v1/users/alice/loans", form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoanQuote(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/loans/quote?principal=100000&rate=12&months=12", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var quote models.LoanQuote
	decode(t, rec, &quote)
	assert.Equal(t, int64(888488), quote.MonthlyPayment.Amount())
	assert.Equal(t, "ZAR", quote.MonthlyPayment.Currency())

	tests := []struct {
		name  string
		query string
	}{
		{"bad principal", "principal=abc&rate=12&months=12"},
		{"bad rate", "principal=100&rate=x&months=12"},
		{"months out of range", "principal=100&rate=12&months=0"},
		{"unknown currency", "principal=100&currency=XXX1&rate=12&months=12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/v1/loans/quote?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
