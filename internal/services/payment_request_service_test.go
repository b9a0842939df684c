package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
)

func TestPaymentRequestService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 15 * time.Minute

	f := newFixture(t)
	f.open(t, "alice", "1000.00")
	f.open(t, "bob", "")
	f.open(t, "carol", "100.00")

	client, mock := redismock.NewClientMock()
	svc := NewPaymentRequestService(client, NewTransferService(f.accounts, f.service, testLogger()), ttl, testLogger())
	svc.newID = func() string { return "req-1" }
	svc.now = func() time.Time { return now }

	open := models.PaymentRequest{
		ID:          "req-1",
		RequesterID: "bob",
		Amount:      zar("50.00"),
		Memo:        "lunch",
		Status:      models.PaymentRequestOpen,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	openData, err := json.Marshal(&open)
	require.NoError(t, err)

	paid := open
	paid.Status = models.PaymentRequestPaid
	paid.PayerID = "alice"
	paidData, err := json.Marshal(&paid)
	require.NoError(t, err)

	t.Run("create stores the request and renders a QR code", func(t *testing.T) {
		mock.ExpectSet("payreq:req-1", openData, ttl).SetVal("OK")

		req, qr, err := svc.Create(ctx, "bob", zar("50.00"), "lunch")
		require.NoError(t, err)
		assert.Equal(t, "req-1", req.ID)
		assert.Equal(t, models.PaymentRequestOpen, req.Status)
		assert.Equal(t, now.Add(ttl), req.ExpiresAt)

		png, err := base64.StdEncoding.DecodeString(qr)
		require.NoError(t, err)
		assert.Equal(t, "\x89PNG", string(png[:4]))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create validates input", func(t *testing.T) {
		_, _, err := svc.Create(ctx, "bob", zar("0"), "")
		assert.True(t, apperrors.IsValidationError(err))
	})

	t.Run("requester cannot pay their own request", func(t *testing.T) {
		mock.ExpectGet("payreq:req-1").SetVal(string(openData))
		_, err := svc.Pay(ctx, "req-1", "bob")
		assert.True(t, apperrors.IsValidationError(err))
	})

	t.Run("pay transfers and marks the request paid", func(t *testing.T) {
		mock.ExpectGet("payreq:req-1").SetVal(string(openData))
		mock.ExpectSet("payreq:req-1", paidData, redis.KeepTTL).SetVal("OK")

		res, err := svc.Pay(ctx, "req-1", "alice")
		require.NoError(t, err)
		assert.Equal(t, models.StatusApplied, res.Status)
		assert.Equal(t, int64(95000), f.wallet(t, "alice"))
		assert.Equal(t, int64(5000), f.wallet(t, "bob"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("paying again is a replay", func(t *testing.T) {
		mock.ExpectGet("payreq:req-1").SetVal(string(paidData))

		res, err := svc.Pay(ctx, "req-1", "alice")
		require.NoError(t, err)
		assert.Equal(t, models.StatusApplied, res.Status)
		assert.Equal(t, int64(95000), f.wallet(t, "alice"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("someone else cannot pay a paid request", func(t *testing.T) {
		mock.ExpectGet("payreq:req-1").SetVal(string(paidData))

		_, err := svc.Pay(ctx, "req-1", "carol")
		assert.True(t, apperrors.IsValidationError(err))
		assert.Equal(t, int64(10000), f.wallet(t, "carol"))
	})

	t.Run("expired request", func(t *testing.T) {
		mock.ExpectGet("payreq:gone").RedisNil()

		_, err := svc.Pay(ctx, "gone", "alice")
		assert.ErrorIs(t, err, apperrors.ErrPaymentRequestNotFound)
	})
}
