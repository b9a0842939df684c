package models

import (
	"time"

	"github.com/bytefinance/backend/internal/money"
)

type PaymentRequestStatus string

const (
	PaymentRequestOpen PaymentRequestStatus = "open"
	PaymentRequestPaid PaymentRequestStatus = "paid"
)

// PaymentRequest is a "scan to pay me" request rendered as a QR code.
type PaymentRequest struct {
	ID          string               `json:"id"`
	RequesterID string               `json:"requester_id"`
	Amount      money.Money          `json:"amount"`
	Memo        string               `json:"memo,omitempty"`
	Status      PaymentRequestStatus `json:"status"`
	PayerID     string               `json:"payer_id,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
}
