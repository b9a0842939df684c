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

type PaymentRequestHandler struct {
	service   *services.PaymentRequestService
	validator *services.ValidationHelper
	log       *logrus.Logger
}

func NewPaymentRequestHandler(service *services.PaymentRequestService, log *logrus.Logger) *PaymentRequestHandler {
	return &PaymentRequestHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		log:       log,
	}
}

// Routes mounts under /users/{userID}.
func (h *PaymentRequestHandler) Routes(r chi.Router) {
	r.Post("/payment-requests", h.Create)
	r.Post("/payment-requests/{requestID}/pay", h.Pay)
}

type CreatePaymentRequest struct {
	Amount money.Money `json:"amount"`
	Memo   string      `json:"memo,omitempty" validate:"max=140"`
}

type PaymentRequestResponse struct {
	Request *models.PaymentRequest `json:"request"`
	URI     string                 `json:"uri"`
	QRImage string                 `json:"qrImage"` // base64 PNG
}

// Create issues a payment request with a QR code
// @Summary Create payment request
// @Description Generate a QR code another user can scan to pay the caller
// @Tags Payment Requests
// @Accept json
// @Produce json
// @Param userID path string true "Requesting user ID"
// @Param request body CreatePaymentRequest true "Amount and memo"
// @Success 201 {object} PaymentRequestResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /users/{userID}/payment-requests [post]
func (h *PaymentRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	pr, qrImage, err := h.service.Create(r.Context(), middleware.UserID(r.Context()), req.Amount, req.Memo)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, PaymentRequestResponse{
		Request: pr,
		URI:     services.PaymentURI(pr.ID),
		QRImage: qrImage,
	})
}

// Get looks up a scanned request
// @Summary Get payment request
// @Tags Payment Requests
// @Produce json
// @Param requestID path string true "Payment request ID"
// @Success 200 {object} models.PaymentRequest
// @Failure 404 {object} services.ErrorResponse
// @Router /payment-requests/{requestID} [get]
func (h *PaymentRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	pr, err := h.service.Get(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// Pay settles a request from the caller's wallet
// @Summary Pay payment request
// @Description Transfer the requested amount to the requester. Safe to retry.
// @Tags Payment Requests
// @Produce json
// @Param userID path string true "Paying user ID"
// @Param requestID path string true "Payment request ID"
// @Success 200 {object} services.TransferResult
// @Success 202 {object} services.TransferResult "Outcome unknown, retry"
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.TransferResult
// @Router /users/{userID}/payment-requests/{requestID}/pay [post]
func (h *PaymentRequestHandler) Pay(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Pay(r.Context(), chi.URLParam(r, "requestID"), middleware.UserID(r.Context()))
	writeTransfer(w, h.log, res, err)
}
