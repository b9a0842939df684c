package services

import (
	"context"

	"github.com/sirupsen/logrus"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
	"github.com/bytefinance/backend/internal/store"
)

// TransferResult reports every step of an internal transfer.
type TransferResult struct {
	Status       models.CommandStatus  `json:"status"`
	Debit        *models.CommandResult `json:"debit,omitempty"`
	Credit       *models.CommandResult `json:"credit,omitempty"`
	Compensation *models.CommandResult `json:"compensation,omitempty"`
}

// TransferService moves money between two users as a saga of single-account
// commands: debit the payer under <key>:out, credit the payee under <key>:in,
// and reverse the debit if the credit is definitively rejected. Retrying with
// the same key resumes wherever the previous attempt stopped.
type TransferService struct {
	accounts store.AccountStore
	ledger   *LedgerService
	log      *logrus.Logger
}

func NewTransferService(accounts store.AccountStore, ledger *LedgerService, log *logrus.Logger) *TransferService {
	return &TransferService{
		accounts: accounts,
		ledger:   ledger,
		log:      log,
	}
}

func (t *TransferService) Transfer(ctx context.Context, fromUserID, toUserID string, amount money.Money, key string) (*TransferResult, error) {
	if fromUserID == toUserID {
		return nil, apperrors.NewValidationError("to_user_id", "cannot transfer to the same account")
	}
	if key == "" {
		return nil, apperrors.NewValidationError("idempotency_key", "is required")
	}
	if _, err := t.accounts.GetBalance(ctx, toUserID); err != nil {
		return nil, err
	}

	logger := t.log.WithFields(logrus.Fields{
		"from_user_id":    fromUserID,
		"to_user_id":      toUserID,
		"idempotency_key": key,
	})

	result := &TransferResult{}
	debit, err := t.ledger.Submit(ctx, fromUserID, models.Command{
		Kind:           models.KindTransferOut,
		Amount:         amount,
		Counterparty:   toUserID,
		IdempotencyKey: key + ":out",
	})
	result.Debit = debit
	if err != nil {
		if debit != nil {
			result.Status = debit.Status
			return result, err
		}
		return nil, err
	}
	if !succeeded(debit) {
		result.Status = debit.Status
		return result, nil
	}

	// The debit is committed; from here on the saga runs to completion.
	ctx = context.WithoutCancel(ctx)

	credit, err := t.ledger.Submit(ctx, toUserID, models.Command{
		Kind:           models.KindTransferIn,
		Amount:         amount,
		Counterparty:   fromUserID,
		IdempotencyKey: key + ":in",
	})
	result.Credit = credit
	if err != nil && apperrors.IsUnavailable(err) {
		logger.WithError(err).Warn("transfer credit in doubt")
		result.Status = models.StatusPending
		return result, err
	}
	if err == nil && succeeded(credit) {
		result.Status = models.StatusApplied
		logger.Info("transfer applied")
		return result, nil
	}

	reason := "credit rejected"
	if err != nil {
		reason = err.Error()
	} else if credit.Reason != "" {
		reason = credit.Reason
	}
	logger.WithField("reason", reason).Warn("transfer credit failed, compensating debit")

	comp, cerr := t.ledger.Reverse(ctx, fromUserID, debit.EntryID, key+":comp")
	result.Compensation = comp
	if cerr != nil {
		result.Status = models.StatusPending
		return result, cerr
	}
	result.Status = models.StatusFailed
	return result, nil
}

func succeeded(res *models.CommandResult) bool {
	return res.Status == models.StatusApplied || res.Status == models.StatusAlreadyApplied
}
