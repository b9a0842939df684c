package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
	"github.com/bytefinance/backend/internal/store"
)

// LedgerService is the transaction coordinator. Every balance change goes
// through Submit: validate, reserve a pending entry, apply one store
// adjustment keyed by the idempotency key, then finalize the entry.
type LedgerService struct {
	accounts        store.AccountStore
	ledger          store.LedgerLog
	locker          Locker
	cache           HoldingsCache
	audit           *AuditLogger
	validator       *ValidationHelper
	log             *logrus.Logger
	defaultCurrency string
	lockTTL         time.Duration
}

type LedgerOption func(*LedgerService)

// WithLocker replaces the in-process locker, e.g. with a RedisLocker when
// several instances share one store.
func WithLocker(l Locker) LedgerOption {
	return func(s *LedgerService) { s.locker = l }
}

func WithHoldingsCache(c HoldingsCache) LedgerOption {
	return func(s *LedgerService) { s.cache = c }
}

func WithLockTTL(ttl time.Duration) LedgerOption {
	return func(s *LedgerService) { s.lockTTL = ttl }
}

func WithDefaultCurrency(code string) LedgerOption {
	return func(s *LedgerService) { s.defaultCurrency = code }
}

func NewLedgerService(accounts store.AccountStore, ledger store.LedgerLog, log *logrus.Logger, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		accounts:        accounts,
		ledger:          ledger,
		locker:          NewMemoryLocker(),
		audit:           NewAuditLogger(log),
		validator:       NewValidationHelper(),
		log:             log,
		defaultCurrency: "ZAR",
		lockTTL:         10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenAccount creates a zero-balance account at onboarding.
func (s *LedgerService) OpenAccount(ctx context.Context, userID, currency string) (*models.Account, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidationError("user_id", "is required")
	}
	if currency == "" {
		currency = s.defaultCurrency
	}
	account, err := s.accounts.Open(ctx, userID, strings.ToUpper(currency))
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "currency": account.Currency}).Info("account opened")
	return account, nil
}

// SetSavingsGoal sets or, with a nil goal, clears the savings target.
func (s *LedgerService) SetSavingsGoal(ctx context.Context, userID string, goal *money.Money) (*models.Account, error) {
	account, err := s.accounts.SetSavingsGoal(ctx, userID, goal)
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", userID).Info("savings goal updated")
	return account, nil
}

// Submit runs one command. Business rejections come back as a result status;
// the error is reserved for invalid commands and infrastructure failures. When
// the store fails after the entry was reserved the result is StatusPending and
// the caller must retry with the same idempotency key or poll.
func (s *LedgerService) Submit(ctx context.Context, userID string, cmd models.Command) (*models.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd = normalizeCommand(cmd)
	if err := s.validateCommand(cmd); err != nil {
		return nil, err
	}
	return s.submit(ctx, userID, cmd, "")
}

func (s *LedgerService) submit(ctx context.Context, userID string, cmd models.Command, reverses string) (*models.CommandResult, error) {
	logger := s.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"kind":            cmd.Kind,
		"idempotency_key": cmd.IdempotencyKey,
	})

	existing, err := s.ledger.GetByKey(ctx, cmd.IdempotencyKey)
	if err == nil {
		logger.WithField("entry_id", existing.ID).Debug("replaying idempotency key")
		return s.replay(ctx, userID, cmd, existing)
	}
	if !errors.Is(err, apperrors.ErrEntryNotFound) {
		return nil, err
	}

	if cmd.Kind == models.KindStockSell {
		unlock, err := s.locker.Lock(ctx, "sell:"+userID, s.lockTTL)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	account, err := s.accounts.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account.Status == models.AccountArchived {
		return nil, apperrors.ErrAccountArchived
	}
	if cmd.Amount.Currency() != account.Currency {
		return nil, apperrors.WrapValidationError("amount", money.ErrCurrencyMismatch)
	}
	if field, ok := debitField(cmd.Kind); ok {
		if cmp, _ := account.Balance(field).Cmp(cmd.Amount); cmp < 0 {
			logger.WithField("balance", account.Balance(field).String()).Info("command rejected: insufficient funds")
			return &models.CommandResult{
				Status: models.StatusInsufficientFunds,
				Reason: models.ReasonInsufficientFunds,
			}, nil
		}
	}
	if cmd.Kind == models.KindStockSell {
		if err := s.checkShares(ctx, userID, cmd); err != nil {
			return nil, err
		}
	}

	// Last point at which cancellation is honoured.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry, err := s.ledger.Append(ctx, &models.LedgerEntry{
		IdempotencyKey:  cmd.IdempotencyKey,
		UserID:          userID,
		Kind:            cmd.Kind,
		Amount:          cmd.Amount,
		Counterparty:    cmd.Counterparty,
		Symbol:          cmd.Symbol,
		Quantity:        cmd.Quantity,
		UnitPrice:       cmd.UnitPrice,
		ReversesEntryID: reverses,
	})
	if apperrors.IsDuplicate(err) {
		return s.replay(ctx, userID, cmd, entry)
	}
	if err != nil {
		return nil, err
	}
	logger.WithField("entry_id", entry.ID).Debug("entry reserved")

	return s.apply(context.WithoutCancel(ctx), entry, false)
}

// replay resolves a command whose key already has an entry. Terminal entries
// report their recorded result; pending ones are resumed under the same key,
// which the account store applies at most once.
func (s *LedgerService) replay(ctx context.Context, userID string, cmd models.Command, existing *models.LedgerEntry) (*models.CommandResult, error) {
	if !sameCommand(existing, userID, cmd) {
		return nil, apperrors.NewValidationError("idempotency_key", "already used for a different command")
	}
	if existing.Status.Terminal() {
		return models.ResultFromEntry(existing), nil
	}
	return s.apply(context.WithoutCancel(ctx), existing, true)
}

func (s *LedgerService) apply(ctx context.Context, entry *models.LedgerEntry, resumed bool) (*models.CommandResult, error) {
	unlock, err := s.locker.Lock(ctx, "entry:"+entry.ID, s.lockTTL)
	if err != nil {
		return pendingResult(entry), err
	}
	defer unlock()

	current, err := s.ledger.Get(ctx, entry.ID)
	if err != nil {
		return pendingResult(entry), err
	}
	if current.Status.Terminal() {
		return models.ResultFromEntry(current), nil
	}

	_, err = s.mutate(ctx, current.UserID, current.Kind, current.Amount, current.IdempotencyKey)
	switch {
	case err == nil:
		return s.finalize(ctx, current, models.Outcome{Status: models.EntryApplied})
	case errors.Is(err, apperrors.ErrAlreadyApplied):
		res, ferr := s.finalize(ctx, current, models.Outcome{Status: models.EntryApplied})
		if ferr == nil && !resumed {
			res.Status = models.StatusAlreadyApplied
		}
		return res, ferr
	case apperrors.IsInsufficientFunds(err):
		return s.finalize(ctx, current, models.Outcome{
			Status: models.EntryFailed,
			Reason: models.ReasonInsufficientFunds,
		})
	case apperrors.IsUnavailable(err):
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id":  current.UserID,
			"entry_id": current.ID,
		}).Warn("outcome unknown, entry left pending")
		return pendingResult(current), err
	default:
		return s.finalize(ctx, current, models.Outcome{Status: models.EntryFailed, Reason: err.Error()})
	}
}

func (s *LedgerService) finalize(ctx context.Context, entry *models.LedgerEntry, outcome models.Outcome) (*models.CommandResult, error) {
	logger := s.log.WithFields(logrus.Fields{
		"user_id":  entry.UserID,
		"entry_id": entry.ID,
		"status":   outcome.Status,
	})

	done, err := s.ledger.Finalize(ctx, entry.ID, outcome)
	if errors.Is(err, apperrors.ErrConflictingFinalization) {
		logger.WithError(err).Error("ledger entry finalized twice with different outcomes")
		s.audit.LogError(entry.UserID, entry.ID, err)
		if current, gerr := s.ledger.Get(ctx, entry.ID); gerr == nil {
			return models.ResultFromEntry(current), err
		}
		return pendingResult(entry), err
	}
	if err != nil {
		logger.WithError(err).Warn("finalize failed, entry left pending")
		return pendingResult(entry), err
	}

	s.audit.LogEntry(done)
	if done.Kind.IsStock() {
		s.invalidateHoldings(ctx, done.UserID)
	}
	logger.WithField("reason", done.FailureReason).Info("ledger entry finalized")
	return models.ResultFromEntry(done), nil
}

func (s *LedgerService) invalidateHoldings(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("holdings cache invalidation failed")
	}
}

// mutate is the single account store call a command of kind makes.
func (s *LedgerService) mutate(ctx context.Context, userID string, kind models.EntryKind, amount money.Money, key string) (*models.Account, error) {
	switch kind {
	case models.KindTransferOut, models.KindStockBuy:
		return s.accounts.Adjust(ctx, userID, models.FieldWallet, amount.Neg(), key)
	case models.KindTransferIn, models.KindDeposit, models.KindStockSell:
		return s.accounts.Adjust(ctx, userID, models.FieldWallet, amount, key)
	case models.KindSavingsDeposit:
		return s.accounts.Move(ctx, userID, models.FieldWallet, models.FieldSavings, amount, key)
	case models.KindSavingsWithdrawal:
		return s.accounts.Move(ctx, userID, models.FieldSavings, models.FieldWallet, amount, key)
	}
	return nil, apperrors.NewValidationError("kind", fmt.Sprintf("unsupported kind %q", kind))
}

// debitField names the balance a kind draws from, if any.
func debitField(kind models.EntryKind) (models.BalanceField, bool) {
	switch kind {
	case models.KindTransferOut, models.KindStockBuy, models.KindSavingsDeposit:
		return models.FieldWallet, true
	case models.KindSavingsWithdrawal:
		return models.FieldSavings, true
	}
	return "", false
}

// checkShares counts in-flight sells against the position so a sell that is
// still pending cannot be sold twice.
func (s *LedgerService) checkShares(ctx context.Context, userID string, cmd models.Command) error {
	entries, err := s.ledger.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	portfolio, err := ComputeHoldings(entries)
	if err != nil {
		return err
	}
	available := portfolio.Shares(cmd.Symbol)
	for _, e := range entries {
		if e.Kind == models.KindStockSell && e.Status == models.EntryPending && e.Symbol == cmd.Symbol {
			available = available.Sub(e.Quantity)
		}
	}
	if cmd.Quantity.GreaterThan(available) {
		return &apperrors.ValidationError{
			Field:   "quantity",
			Message: fmt.Sprintf("cannot sell %s %s, %s held", cmd.Quantity, cmd.Symbol, available),
			Cause:   apperrors.ErrInsufficientShares,
		}
	}
	return nil
}

// Reverse undoes an entry. An applied entry gets a compensating entry of the
// inverse kind; an in-doubt pending entry is rolled back and finalized as
// reversed, or as failed when the store never applied it. key defaults to a
// value derived from the entry so a retried reversal stays idempotent.
func (s *LedgerService) Reverse(ctx context.Context, userID, entryID, key string) (*models.CommandResult, error) {
	orig, err := s.ledger.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if orig.UserID != userID {
		return nil, apperrors.ErrEntryNotFound
	}

	switch orig.Status {
	case models.EntryApplied:
		return s.compensate(ctx, orig, key)
	case models.EntryPending:
		return s.rollbackPending(context.WithoutCancel(ctx), orig)
	}
	return nil, apperrors.NewValidationError("entry_id", fmt.Sprintf("entry is %s, nothing to reverse", orig.Status))
}

func (s *LedgerService) compensate(ctx context.Context, orig *models.LedgerEntry, key string) (*models.CommandResult, error) {
	if orig.ReversesEntryID != "" {
		return nil, apperrors.NewValidationError("entry_id", "compensating entries cannot be reversed")
	}
	if key == "" {
		key = "reversal:" + orig.ID
	}

	// One compensation per entry: the scan and the append happen under the
	// same lock, whatever key each caller brings.
	unlock, err := s.locker.Lock(ctx, "reverse:"+orig.ID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := s.ledger.ListForUser(ctx, orig.UserID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		e := &entries[i]
		if e.ReversesEntryID == orig.ID && e.IdempotencyKey != key && e.Status != models.EntryFailed {
			return models.ResultFromEntry(e), nil
		}
	}

	cmd := models.Command{
		Kind:           orig.Kind.Inverse(),
		Amount:         orig.Amount,
		Counterparty:   orig.Counterparty,
		Symbol:         orig.Symbol,
		Quantity:       orig.Quantity,
		UnitPrice:      orig.UnitPrice,
		IdempotencyKey: key,
	}
	res, err := s.submit(ctx, orig.UserID, cmd, orig.ID)
	if err == nil && res.Status == models.StatusApplied {
		s.audit.LogCompensation(orig.UserID, orig.ID, res.EntryID, "reversal")
	}
	return res, err
}

func (s *LedgerService) rollbackPending(ctx context.Context, orig *models.LedgerEntry) (*models.CommandResult, error) {
	unlock, err := s.locker.Lock(ctx, "entry:"+orig.ID, s.lockTTL)
	if err != nil {
		return pendingResult(orig), err
	}
	defer unlock()

	current, err := s.ledger.Get(ctx, orig.ID)
	if err != nil {
		return pendingResult(orig), err
	}
	if current.Status.Terminal() {
		return models.ResultFromEntry(current), nil
	}

	applied, err := s.accounts.WasApplied(ctx, current.UserID, current.IdempotencyKey)
	if err != nil {
		return pendingResult(current), err
	}
	if !applied {
		return s.finalize(ctx, current, models.Outcome{Status: models.EntryFailed, Reason: models.ReasonNotApplied})
	}

	_, err = s.mutate(ctx, current.UserID, current.Kind.Inverse(), current.Amount, current.IdempotencyKey+":reversal")
	switch {
	case err == nil, errors.Is(err, apperrors.ErrAlreadyApplied):
	case apperrors.IsInsufficientFunds(err):
		return &models.CommandResult{
			Status:  models.StatusInsufficientFunds,
			EntryID: current.ID,
			Reason:  models.ReasonInsufficientFunds,
		}, nil
	default:
		return pendingResult(current), err
	}

	res, err := s.finalize(ctx, current, models.Outcome{Status: models.EntryReversed})
	if err == nil {
		s.audit.LogCompensation(current.UserID, current.ID, current.ID, "pending entry rolled back")
	}
	return res, err
}

// ResolvePending settles an entry left pending by a crash or an unreachable
// store: applied when the account store holds its key, failed otherwise.
func (s *LedgerService) ResolvePending(ctx context.Context, entryID string) (*models.CommandResult, error) {
	unlock, err := s.locker.Lock(ctx, "entry:"+entryID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.ledger.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return models.ResultFromEntry(current), nil
	}

	applied, err := s.accounts.WasApplied(ctx, current.UserID, current.IdempotencyKey)
	if err != nil {
		return pendingResult(current), err
	}
	outcome := models.Outcome{Status: models.EntryFailed, Reason: models.ReasonTimedOut}
	if applied {
		outcome = models.Outcome{Status: models.EntryApplied}
	}
	return s.finalize(ctx, current, outcome)
}

func (s *LedgerService) validateCommand(cmd models.Command) error {
	if err := s.validator.Validate(&cmd); err != nil {
		return err
	}
	if !cmd.Amount.IsPositive() {
		return apperrors.NewValidationError("amount", "must be greater than zero")
	}
	if !cmd.Kind.IsStock() {
		if cmd.Symbol != "" || !cmd.Quantity.IsZero() {
			return apperrors.NewValidationError("symbol", "only stock trades carry a symbol and quantity")
		}
		return nil
	}

	if cmd.Symbol == "" {
		return apperrors.NewValidationError("symbol", "is required for stock trades")
	}
	if !cmd.Quantity.IsPositive() {
		return apperrors.NewValidationError("quantity", "must be greater than zero")
	}
	if !cmd.Quantity.Equal(cmd.Quantity.Truncate(8)) {
		return apperrors.NewValidationError("quantity", "at most 8 decimal places")
	}
	if !cmd.UnitPrice.IsPositive() {
		return apperrors.NewValidationError("unit_price", "must be greater than zero")
	}
	if cmd.UnitPrice.Currency() != cmd.Amount.Currency() {
		return apperrors.WrapValidationError("unit_price", money.ErrCurrencyMismatch)
	}
	if !cmd.UnitPrice.MulQuantity(cmd.Quantity).Equal(cmd.Amount) {
		return apperrors.NewValidationError("amount", "must equal quantity * unit_price")
	}
	return nil
}

// normalizeCommand fills a stock trade's amount from quantity and unit price
// when the caller left it out.
func normalizeCommand(cmd models.Command) models.Command {
	cmd.Symbol = strings.ToUpper(strings.TrimSpace(cmd.Symbol))
	cmd.Counterparty = strings.TrimSpace(cmd.Counterparty)
	if cmd.Kind.IsStock() && cmd.Amount.IsZero() && cmd.UnitPrice.IsPositive() {
		cmd.Amount = cmd.UnitPrice.MulQuantity(cmd.Quantity)
	}
	return cmd
}

func sameCommand(e *models.LedgerEntry, userID string, cmd models.Command) bool {
	return e.UserID == userID &&
		e.Kind == cmd.Kind &&
		e.Amount.Equal(cmd.Amount) &&
		e.Counterparty == cmd.Counterparty &&
		e.Symbol == cmd.Symbol &&
		e.Quantity.Equal(cmd.Quantity) &&
		samePrice(e.UnitPrice, cmd.UnitPrice)
}

// Zero unit prices are stored without a currency.
func samePrice(a, b money.Money) bool {
	if a.IsZero() && b.IsZero() {
		return true
	}
	return a.Equal(b)
}

func pendingResult(entry *models.LedgerEntry) *models.CommandResult {
	return &models.CommandResult{Status: models.StatusPending, EntryID: entry.ID}
}
