package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/middleware"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
	"github.com/bytefinance/backend/internal/services"
)

type LoanHandler struct {
	loans           *services.LoanService
	validator       *services.ValidationHelper
	defaultCurrency string
	log             *logrus.Logger
}

func NewLoanHandler(loans *services.LoanService, defaultCurrency string, log *logrus.Logger) *LoanHandler {
	return &LoanHandler{
		loans:           loans,
		validator:       services.NewValidationHelper(),
		defaultCurrency: defaultCurrency,
		log:             log,
	}
}

// Routes mounts under /users/{userID}.
func (h *LoanHandler) Routes(r chi.Router) {
	r.Post("/loans", h.Apply)
	r.Get("/loans", h.List)
	r.Get("/loans/{loanID}", h.Get)
	r.Post("/loans/{loanID}/status", h.Transition)
}

// Apply records a loan application
// @Summary Apply for a loan
// @Description Saves the application as a draft, or submits it when submit is true
// @Tags Loans
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Param request body services.LoanApplicationRequest true "Application"
// @Success 201 {object} models.LoanApplication
// @Failure 400 {object} services.ErrorResponse
// @Router /users/{userID}/loans [post]
func (h *LoanHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req services.LoanApplicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	loan, err := h.loans.Apply(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// List returns the user's applications
// @Summary List loan applications
// @Tags Loans
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {array} models.LoanApplication
// @Router /users/{userID}/loans [get]
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.List(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if loans == nil {
		loans = []models.LoanApplication{}
	}
	writeJSON(w, http.StatusOK, loans)
}

// Get returns one application
// @Summary Get loan application
// @Tags Loans
// @Produce json
// @Param userID path string true "User ID"
// @Param loanID path string true "Loan application ID"
// @Success 200 {object} models.LoanApplication
// @Failure 404 {object} services.ErrorResponse
// @Router /users/{userID}/loans/{loanID} [get]
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.Get(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "loanID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

type LoanStatusRequest struct {
	Status models.LoanStatus `json:"status" validate:"required,oneof=submitted under_review approved declined withdrawn"`
}

// Transition moves an application to its next status
// @Summary Update loan status
// @Tags Loans
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Param loanID path string true "Loan application ID"
// @Param request body LoanStatusRequest true "Target status"
// @Success 200 {object} models.LoanApplication
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /users/{userID}/loans/{loanID}/status [post]
func (h *LoanHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req LoanStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	loan, err := h.loans.Transition(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "loanID"), req.Status)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// Quote calculates a repayment schedule summary
// @Summary Loan repayment quote
// @Tags Loans
// @Produce json
// @Param principal query string true "Principal in major units, e.g. 25000.00"
// @Param currency query string false "ISO currency code"
// @Param rate query string true "Annual interest rate in percent"
// @Param months query int true "Repayment period in months"
// @Success 200 {object} models.LoanQuote
// @Failure 400 {object} services.ErrorResponse
// @Router /loans/quote [get]
func (h *LoanHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	currency := strings.ToUpper(q.Get("currency"))
	if currency == "" {
		currency = h.defaultCurrency
	}
	principal, err := money.Parse(q.Get("principal"), currency)
	if err != nil {
		writeError(w, h.log, apperrors.WrapValidationError("principal", err))
		return
	}
	rate, err := decimal.NewFromString(q.Get("rate"))
	if err != nil {
		writeError(w, h.log, apperrors.WrapValidationError("rate", err))
		return
	}
	months, err := strconv.Atoi(q.Get("months"))
	if err != nil {
		writeError(w, h.log, apperrors.WrapValidationError("months", err))
		return
	}

	quote, err := services.Quote(principal, rate, months)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
