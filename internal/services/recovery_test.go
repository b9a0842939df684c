package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytefinance/backend/internal/models"
)

func TestRecoveryService_Sweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.open(t, "user-1", "1000.00")

	seen, err := f.ledger.Append(ctx, &models.LedgerEntry{
		IdempotencyKey: "seen", UserID: "user-1", Kind: models.KindTransferOut, Amount: zar("10.00"),
	})
	require.NoError(t, err)
	_, err = f.accounts.Adjust(ctx, "user-1", models.FieldWallet, zar("-10.00"), "seen")
	require.NoError(t, err)

	lost, err := f.ledger.Append(ctx, &models.LedgerEntry{
		IdempotencyKey: "lost", UserID: "user-1", Kind: models.KindTransferOut, Amount: zar("20.00"),
	})
	require.NoError(t, err)

	r := NewRecoveryService(f.ledger, f.service, 5*time.Minute, testLogger())

	t.Run("young entries are left alone", func(t *testing.T) {
		stats, err := r.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Scanned)
	})

	t.Run("stuck entries are settled by store evidence", func(t *testing.T) {
		r.now = func() time.Time { return time.Now().Add(time.Hour) }

		stats, err := r.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, SweepStats{Scanned: 2, Applied: 1, Failed: 1}, stats)

		e, err := f.ledger.Get(ctx, seen.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EntryApplied, e.Status)

		e, err = f.ledger.Get(ctx, lost.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EntryFailed, e.Status)
		assert.Equal(t, models.ReasonTimedOut, e.FailureReason)

		assert.Equal(t, int64(99000), f.wallet(t, "user-1"))
	})

	t.Run("nothing left on the next run", func(t *testing.T) {
		stats, err := r.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Scanned)
	})
}

func TestRecoveryService_Start(t *testing.T) {
	f := newFixture(t)
	r := NewRecoveryService(f.ledger, f.service, time.Minute, testLogger())

	c, err := r.Start("@every 1h")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	<-c.Stop().Done()

	_, err = r.Start("not a schedule")
	assert.Error(t, err)
}
