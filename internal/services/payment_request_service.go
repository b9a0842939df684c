package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
)

// PaymentRequestService issues "scan to pay me" requests. Requests live in
// redis until they expire; paying one runs an internal transfer keyed by the
// request id, so a request is paid at most once.
type PaymentRequestService struct {
	redis     *redis.Client
	transfers *TransferService
	ttl       time.Duration
	log       *logrus.Logger
	newID     func() string
	now       func() time.Time
}

func NewPaymentRequestService(client *redis.Client, transfers *TransferService, ttl time.Duration, log *logrus.Logger) *PaymentRequestService {
	return &PaymentRequestService{
		redis:     client,
		transfers: transfers,
		ttl:       ttl,
		log:       log,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

func paymentRequestKey(id string) string {
	return fmt.Sprintf("payreq:%s", id)
}

// PaymentURI is the payload encoded in the QR code.
func PaymentURI(id string) string {
	return "bytefinance://pay?request=" + id
}

// Create stores a new request and returns it with a base64 PNG QR code.
func (s *PaymentRequestService) Create(ctx context.Context, requesterID string, amount money.Money, memo string) (*models.PaymentRequest, string, error) {
	if requesterID == "" {
		return nil, "", apperrors.NewValidationError("requester_id", "is required")
	}
	if !amount.IsPositive() {
		return nil, "", apperrors.NewValidationError("amount", "must be greater than zero")
	}
	if len(memo) > 140 {
		return nil, "", apperrors.NewValidationError("memo", "must be at most 140 characters")
	}

	now := s.now().UTC()
	req := &models.PaymentRequest{
		ID:          s.newID(),
		RequesterID: requesterID,
		Amount:      amount,
		Memo:        memo,
		Status:      models.PaymentRequestOpen,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, "", err
	}
	if err := s.redis.Set(ctx, paymentRequestKey(req.ID), data, s.ttl).Err(); err != nil {
		return nil, "", apperrors.Unavailable("store payment request", err)
	}

	qr, err := qrcode.New(PaymentURI(req.ID), qrcode.Medium)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, "", err
	}

	s.log.WithFields(logrus.Fields{
		"request_id":   req.ID,
		"requester_id": requesterID,
		"amount":       amount.String(),
	}).Info("payment request created")

	return req, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *PaymentRequestService) Get(ctx context.Context, id string) (*models.PaymentRequest, error) {
	data, err := s.redis.Get(ctx, paymentRequestKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrPaymentRequestNotFound
	}
	if err != nil {
		return nil, apperrors.Unavailable("load payment request", err)
	}

	var req models.PaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Pay settles an open request from payerID's wallet. Retrying after a partial
// failure resumes the same transfer.
func (s *PaymentRequestService) Pay(ctx context.Context, id, payerID string) (*TransferResult, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payerID == req.RequesterID {
		return nil, apperrors.NewValidationError("payer_id", "cannot pay your own request")
	}
	if req.Status == models.PaymentRequestPaid && req.PayerID != payerID {
		return nil, apperrors.NewValidationError("request_id", "payment request already paid")
	}

	result, err := s.transfers.Transfer(ctx, payerID, req.RequesterID, req.Amount, "payreq:"+req.ID)
	if err != nil || result.Status != models.StatusApplied || req.Status == models.PaymentRequestPaid {
		return result, err
	}

	req.Status = models.PaymentRequestPaid
	req.PayerID = payerID
	data, err := json.Marshal(req)
	if err != nil {
		return result, err
	}
	if err := s.redis.Set(ctx, paymentRequestKey(req.ID), data, redis.KeepTTL).Err(); err != nil {
		s.log.WithError(err).WithField("request_id", req.ID).Warn("could not mark payment request paid")
	}

	s.log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"payer_id":   payerID,
	}).Info("payment request paid")
	return result, nil
}
