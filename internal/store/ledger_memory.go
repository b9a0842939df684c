package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/bytefinance/backend/internal/errors"
	"github.com/bytefinance/backend/internal/models"
)

// MemoryLedger keeps entries in append order. Readers share the lock and
// never wait on account mutations.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []*models.LedgerEntry
	byID    map[string]int
	byKey   map[string]int
	byUser  map[string][]int
	now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byID:   make(map[string]int),
		byKey:  make(map[string]int),
		byUser: make(map[string][]int),
		now:    time.Now,
	}
}

func (l *MemoryLedger) Append(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, exists := l.byKey[entry.IdempotencyKey]; exists {
		existing := *l.entries[idx]
		return &existing, apperrors.ErrDuplicateIdempotencyKey
	}

	e := *entry
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Seq = int64(len(l.entries) + 1)
	e.Status = models.EntryPending
	e.FailureReason = ""
	e.AppliedAt = nil
	e.CreatedAt = l.now().UTC()

	idx := len(l.entries)
	l.entries = append(l.entries, &e)
	l.byID[e.ID] = idx
	l.byKey[e.IdempotencyKey] = idx
	l.byUser[e.UserID] = append(l.byUser[e.UserID], idx)

	out := e
	return &out, nil
}

func (l *MemoryLedger) Finalize(ctx context.Context, entryID string, outcome models.Outcome) (*models.LedgerEntry, error) {
	if !outcome.Status.Terminal() {
		return nil, apperrors.NewValidationError("status", "finalize requires a terminal status")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byID[entryID]
	if !ok {
		return nil, apperrors.ErrEntryNotFound
	}
	e := l.entries[idx]

	if e.Status.Terminal() {
		if e.Status != outcome.Status {
			return nil, apperrors.ErrConflictingFinalization
		}
		out := *e
		return &out, nil
	}

	e.Status = outcome.Status
	e.FailureReason = outcome.Reason
	if outcome.Status == models.EntryApplied {
		at := l.now().UTC()
		e.AppliedAt = &at
	}
	out := *e
	return &out, nil
}

func (l *MemoryLedger) Get(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byID[entryID]
	if !ok {
		return nil, apperrors.ErrEntryNotFound
	}
	out := *l.entries[idx]
	return &out, nil
}

func (l *MemoryLedger) GetByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byKey[key]
	if !ok {
		return nil, apperrors.ErrEntryNotFound
	}
	out := *l.entries[idx]
	return &out, nil
}

func (l *MemoryLedger) ListForUser(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idxs := l.byUser[userID]
	out := make([]models.LedgerEntry, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, *l.entries[idx])
	}
	return out, nil
}

func (l *MemoryLedger) ListPending(ctx context.Context, olderThan time.Time) ([]models.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.LedgerEntry
	for _, e := range l.entries {
		if e.Status == models.EntryPending && e.CreatedAt.Before(olderThan) {
			out = append(out, *e)
		}
	}
	return out, nil
}
