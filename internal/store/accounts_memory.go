package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
)

type accountSlot struct {
	mu      sync.Mutex
	account models.Account
	applied map[string]struct{}
}

// MemoryAccountStore serializes mutations with one mutex per account.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*accountSlot
	now      func() time.Time
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[string]*accountSlot),
		now:      time.Now,
	}
}

func (s *MemoryAccountStore) slot(userID string) (*accountSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.accounts[userID]
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}
	return sl, nil
}

func (s *MemoryAccountStore) Open(ctx context.Context, userID, currency string) (*models.Account, error) {
	if !money.IsKnownCurrency(currency) {
		return nil, apperrors.NewValidationError("currency", fmt.Sprintf("unknown currency %q", currency))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[userID]; exists {
		return nil, apperrors.ErrAccountAlreadyExists
	}

	now := s.now().UTC()
	sl := &accountSlot{
		account: models.Account{
			UserID:         userID,
			Currency:       currency,
			WalletBalance:  money.Zero(currency),
			SavingsBalance: money.Zero(currency),
			Status:         models.AccountActive,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		applied: make(map[string]struct{}),
	}
	s.accounts[userID] = sl
	return copyAccount(&sl.account), nil
}

func (s *MemoryAccountStore) GetBalance(ctx context.Context, userID string) (*models.Account, error) {
	sl, err := s.slot(userID)
	if err != nil {
		return nil, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return copyAccount(&sl.account), nil
}

func (s *MemoryAccountStore) Adjust(ctx context.Context, userID string, field models.BalanceField, delta money.Money, key string) (*models.Account, error) {
	if !field.Valid() {
		return nil, apperrors.NewValidationError("field", fmt.Sprintf("unknown balance field %q", field))
	}
	sl, err := s.slot(userID)
	if err != nil {
		return nil, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if err := checkMutable(&sl.account, delta.Currency()); err != nil {
		return nil, err
	}
	if _, done := sl.applied[key]; done {
		return nil, apperrors.ErrAlreadyApplied
	}

	next, err := sl.account.Balance(field).Add(delta)
	if err != nil {
		return nil, apperrors.WrapValidationError("amount", err)
	}
	if next.IsNegative() {
		return nil, apperrors.ErrInsufficientFunds
	}

	sl.account.SetBalance(field, next)
	s.commit(sl, key)
	return copyAccount(&sl.account), nil
}

func (s *MemoryAccountStore) Move(ctx context.Context, userID string, from, to models.BalanceField, amount money.Money, key string) (*models.Account, error) {
	if err := validateMove(from, to, amount); err != nil {
		return nil, err
	}
	sl, err := s.slot(userID)
	if err != nil {
		return nil, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if err := checkMutable(&sl.account, amount.Currency()); err != nil {
		return nil, err
	}
	if _, done := sl.applied[key]; done {
		return nil, apperrors.ErrAlreadyApplied
	}

	source, err := sl.account.Balance(from).Sub(amount)
	if err != nil {
		return nil, apperrors.WrapValidationError("amount", err)
	}
	if source.IsNegative() {
		return nil, apperrors.ErrInsufficientFunds
	}
	target, err := sl.account.Balance(to).Add(amount)
	if err != nil {
		return nil, apperrors.WrapValidationError("amount", err)
	}

	sl.account.SetBalance(from, source)
	sl.account.SetBalance(to, target)
	s.commit(sl, key)
	return copyAccount(&sl.account), nil
}

func (s *MemoryAccountStore) commit(sl *accountSlot, key string) {
	sl.applied[key] = struct{}{}
	sl.account.Version++
	sl.account.UpdatedAt = s.now().UTC()
}

func (s *MemoryAccountStore) WasApplied(ctx context.Context, userID, key string) (bool, error) {
	sl, err := s.slot(userID)
	if err != nil {
		return false, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	_, done := sl.applied[key]
	return done, nil
}

func (s *MemoryAccountStore) SetSavingsGoal(ctx context.Context, userID string, goal *money.Money) (*models.Account, error) {
	sl, err := s.slot(userID)
	if err != nil {
		return nil, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if goal != nil {
		if err := checkMutable(&sl.account, goal.Currency()); err != nil {
			return nil, err
		}
		if goal.IsNegative() {
			return nil, apperrors.NewValidationError("savings_goal", "must not be negative")
		}
		g := *goal
		sl.account.SavingsGoal = &g
	} else {
		sl.account.SavingsGoal = nil
	}
	sl.account.Version++
	sl.account.UpdatedAt = s.now().UTC()
	return copyAccount(&sl.account), nil
}

func (s *MemoryAccountStore) Archive(ctx context.Context, userID string) error {
	sl, err := s.slot(userID)
	if err != nil {
		return err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.account.Status = models.AccountArchived
	sl.account.Version++
	sl.account.UpdatedAt = s.now().UTC()
	return nil
}

func checkMutable(account *models.Account, currency string) error {
	if account.Status == models.AccountArchived {
		return apperrors.ErrAccountArchived
	}
	if currency != account.Currency {
		return apperrors.WrapValidationError("currency", money.ErrCurrencyMismatch)
	}
	return nil
}

func validateMove(from, to models.BalanceField, amount money.Money) error {
	if !from.Valid() || !to.Valid() || from == to {
		return apperrors.NewValidationError("field", fmt.Sprintf("cannot move from %q to %q", from, to))
	}
	if !amount.IsPositive() {
		return apperrors.NewValidationError("amount", "must be greater than zero")
	}
	return nil
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	if a.SavingsGoal != nil {
		g := *a.SavingsGoal
		c.SavingsGoal = &g
	}
	return &c
}
