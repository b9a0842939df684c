package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/bytefinance/backend/internal/middleware"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
	"github.com/bytefinance/backend/internal/services"
)

type LedgerHandler struct {
	ledger    *services.LedgerService
	queries   *services.QueryService
	transfers *services.TransferService
	validator *services.ValidationHelper
	log       *logrus.Logger
}

func NewLedgerHandler(ledger *services.LedgerService, queries *services.QueryService, transfers *services.TransferService, log *logrus.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledger,
		queries:   queries,
		transfers: transfers,
		validator: services.NewValidationHelper(),
		log:       log,
	}
}

// Routes mounts under /users/{userID}.
func (h *LedgerHandler) Routes(r chi.Router) {
	r.Post("/account", h.OpenAccount)
	r.Get("/account", h.GetAccount)
	r.Put("/savings-goal", h.SetSavingsGoal)
	r.Post("/commands", h.SubmitCommand)
	r.Get("/ledger", h.GetLedger)
	r.Post("/ledger/{entryID}/reverse", h.ReverseEntry)
	r.Get("/holdings", h.GetHoldings)
	r.Post("/transfers", h.Transfer)
}

type OpenAccountRequest struct {
	Currency string `json:"currency" validate:"omitempty,len=3,alpha"`
}

// OpenAccount creates the user's account
// @Summary Open account
// @Description Create a wallet and savings account for the user. Currency defaults to the service currency.
// @Tags Accounts
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Param request body OpenAccountRequest false "Account options"
// @Success 201 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /users/{userID}/account [post]
func (h *LedgerHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := h.ledger.OpenAccount(r.Context(), middleware.UserID(r.Context()), req.Currency)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// GetAccount returns balances and derived totals
// @Summary Account snapshot
// @Description Wallet, savings and investment balances with net worth and savings goal progress
// @Tags Accounts
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} models.AccountSnapshot
// @Failure 404 {object} services.ErrorResponse
// @Router /users/{userID}/account [get]
func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.queries.GetAccountSnapshot(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type SavingsGoalRequest struct {
	Goal *money.Money `json:"goal"`
}

// SetSavingsGoal sets or clears the savings target
// @Summary Set savings goal
// @Tags Accounts
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Param request body SavingsGoalRequest true "Goal; null clears it"
// @Success 200 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /users/{userID}/savings-goal [put]
func (h *LedgerHandler) SetSavingsGoal(w http.ResponseWriter, r *http.Request) {
	var req SavingsGoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.ledger.SetSavingsGoal(r.Context(), middleware.UserID(r.Context()), req.Goal)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// SubmitCommand runs one balance-changing command
// @Summary Submit command
// @Description Apply a transfer, deposit, stock trade or savings movement exactly once per idempotency key.
// @Description The key may also be sent in the Idempotency-Key header.
// @Tags Ledger
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body models.Command true "Command"
// @Success 200 {object} models.CommandResult
// @Success 202 {object} models.CommandResult "Outcome unknown, retry with the same key"
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} models.CommandResult
// @Router /users/{userID}/commands [post]
func (h *LedgerHandler) SubmitCommand(w http.ResponseWriter, r *http.Request) {
	var cmd models.Command
	if !decodeJSON(w, r, &cmd) {
		return
	}
	if cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	res, err := h.ledger.Submit(r.Context(), middleware.UserID(r.Context()), cmd)
	writeResult(w, h.log, res, err)
}

// GetLedger lists the user's entries
// @Summary Ledger history
// @Tags Ledger
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {array} models.LedgerEntry
// @Failure 404 {object} services.ErrorResponse
// @Router /users/{userID}/ledger [get]
func (h *LedgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queries.GetLedger(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type ReverseRequest struct {
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"max=128"`
}

// ReverseEntry compensates an applied entry or rolls back a pending one
// @Summary Reverse entry
// @Tags Ledger
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Param entryID path string true "Entry ID"
// @Param request body ReverseRequest false "Reversal options"
// @Success 200 {object} models.CommandResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} models.CommandResult
// @Router /users/{userID}/ledger/{entryID}/reverse [post]
func (h *LedgerHandler) ReverseEntry(w http.ResponseWriter, r *http.Request) {
	var req ReverseRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	res, err := h.ledger.Reverse(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "entryID"), req.IdempotencyKey)
	writeResult(w, h.log, res, err)
}

// GetHoldings returns current stock positions
// @Summary Holdings
// @Description Positions derived from applied stock trades, valued at the last trade price
// @Tags Portfolio
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {array} models.Holding
// @Failure 404 {object} services.ErrorResponse
// @Router /users/{userID}/holdings [get]
func (h *LedgerHandler) GetHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.queries.GetHoldings(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if holdings == nil {
		holdings = []models.Holding{}
	}
	writeJSON(w, http.StatusOK, holdings)
}

type TransferRequest struct {
	ToUserID       string      `json:"to_user_id" validate:"required,max=64"`
	Amount         money.Money `json:"amount"`
	IdempotencyKey string      `json:"idempotency_key" validate:"required,max=120"`
}

// Transfer moves money to another user
// @Summary Internal transfer
// @Description Debit the caller and credit the payee. A rejected credit reverses the debit.
// @Tags Transfers
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Param request body TransferRequest true "Transfer"
// @Success 200 {object} services.TransferResult
// @Success 202 {object} services.TransferResult "Outcome unknown, retry with the same key"
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.TransferResult
// @Router /users/{userID}/transfers [post]
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	res, err := h.transfers.Transfer(r.Context(), middleware.UserID(r.Context()), req.ToUserID, req.Amount, req.IdempotencyKey)
	writeTransfer(w, h.log, res, err)
}

func writeTransfer(w http.ResponseWriter, log *logrus.Logger, res *services.TransferResult, err error) {
	if res != nil && res.Status == models.StatusPending {
		if err != nil {
			log.WithError(err).Warn("transfer left pending")
		}
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, resultStatusCode(res.Status), res)
}
