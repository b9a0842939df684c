package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/bytefinance/backend/internal/models"
	"github.com/bytefinance/backend/internal/store"
)

// RecoveryService settles entries stuck in pending after a crash or a store
// outage between reservation and finalization.
type RecoveryService struct {
	ledger  store.LedgerLog
	coord   *LedgerService
	timeout time.Duration
	log     *logrus.Logger
	now     func() time.Time
}

func NewRecoveryService(ledger store.LedgerLog, coord *LedgerService, timeout time.Duration, log *logrus.Logger) *RecoveryService {
	return &RecoveryService{
		ledger:  ledger,
		coord:   coord,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Scanned int
	Applied int
	Failed  int
	Errors  int
}

// Sweep finalizes every pending entry older than the timeout.
func (r *RecoveryService) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	pending, err := r.ledger.ListPending(ctx, r.now().Add(-r.timeout))
	if err != nil {
		return stats, err
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Scanned++

		res, err := r.coord.ResolvePending(ctx, entry.ID)
		if err != nil {
			stats.Errors++
			r.log.WithError(err).WithFields(logrus.Fields{
				"entry_id": entry.ID,
				"user_id":  entry.UserID,
			}).Warn("recovery: could not resolve pending entry")
			continue
		}
		if res.Status == models.StatusApplied {
			stats.Applied++
		} else {
			stats.Failed++
		}
	}

	if stats.Scanned > 0 {
		r.log.WithFields(logrus.Fields{
			"scanned": stats.Scanned,
			"applied": stats.Applied,
			"failed":  stats.Failed,
			"errors":  stats.Errors,
		}).Info("recovery sweep finished")
	}
	return stats, nil
}

// Start schedules Sweep on a cron schedule such as "@every 1m". The caller stops
// the returned scheduler on shutdown.
func (r *RecoveryService) Start(schedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.Sweep(ctx); err != nil {
			r.log.WithError(err).Error("recovery sweep failed")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
