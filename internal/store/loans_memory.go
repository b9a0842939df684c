package store

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
)

type MemoryLoanStore struct {
	mu    sync.RWMutex
	loans map[string]models.LoanApplication
	now   func() time.Time
}

func NewMemoryLoanStore() *MemoryLoanStore {
	return &MemoryLoanStore{loans: make(map[string]models.LoanApplication), now: time.Now}
}

func (s *MemoryLoanStore) Create(ctx context.Context, loan *models.LoanApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	loan.CreatedAt, loan.UpdatedAt = now, now
	s.loans[loan.ID] = *loan
	return nil
}

func (s *MemoryLoanStore) Get(ctx context.Context, userID, id string) (*models.LoanApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[id]
	if !ok || loan.UserID != userID {
		return nil, apperrors.ErrLoanNotFound
	}
	return &loan, nil
}

func (s *MemoryLoanStore) ListForUser(ctx context.Context, userID string) ([]models.LoanApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LoanApplication
	for _, loan := range s.loans {
		if loan.UserID == userID {
			out = append(out, loan)
		}
	}
	// newest first, like the loans page
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryLoanStore) UpdateStatus(ctx context.Context, userID, id string, from, to models.LoanStatus) (*models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok || loan.UserID != userID {
		return nil, apperrors.ErrLoanNotFound
	}
	if loan.Status != from {
		return nil, apperrors.ErrInvalidLoanTransition
	}
	loan.Status = to
	loan.UpdatedAt = s.now().UTC()
	s.loans[id] = loan
	return &loan, nil
}
