package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/money"
)

type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) account(args mock.Arguments) (*models.Account, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountStore) Open(ctx context.Context, userID, currency string) (*models.Account, error) {
	return m.account(m.Called(ctx, userID, currency))
}

func (m *MockAccountStore) GetBalance(ctx context.Context, userID string) (*models.Account, error) {
	return m.account(m.Called(ctx, userID))
}

func (m *MockAccountStore) Adjust(ctx context.Context, userID string, field models.BalanceField, delta money.Money, key string) (*models.Account, error) {
	return m.account(m.Called(ctx, userID, field, delta, key))
}

func (m *MockAccountStore) Move(ctx context.Context, userID string, from, to models.BalanceField, amount money.Money, key string) (*models.Account, error) {
	return m.account(m.Called(ctx, userID, from, to, amount, key))
}

func (m *MockAccountStore) WasApplied(ctx context.Context, userID, key string) (bool, error) {
	args := m.Called(ctx, userID, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) SetSavingsGoal(ctx context.Context, userID string, goal *money.Money) (*models.Account, error) {
	return m.account(m.Called(ctx, userID, goal))
}

func (m *MockAccountStore) Archive(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type MockHoldingsCache struct {
	mock.Mock
}

func (m *MockHoldingsCache) Get(ctx context.Context, userID string) ([]models.Holding, int64, bool) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Bool(2)
	}
	return args.Get(0).([]models.Holding), args.Get(1).(int64), args.Bool(2)
}

func (m *MockHoldingsCache) Set(ctx context.Context, userID string, gen int64, holdings []models.Holding) {
	m.Called(ctx, userID, gen, holdings)
}

func (m *MockHoldingsCache) Invalidate(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
