package workflow

import (
	"context"
	"time"

	"github.com/huminex/payroll_backend/metrics"
	"github.com/huminex/payroll_backend/models"
	"github.com/sirupsen/logrus"
)

// IdempotencyReaper deletes expired idempotency records in batches.
type IdempotencyReaper struct {
	Store     *models.IdempotencyStore
	Logger    *logrus.Logger
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

func NewIdempotencyReaper(store *models.IdempotencyStore, logger *logrus.Logger, interval time.Duration, batchSize int) *IdempotencyReaper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &IdempotencyReaper{
		Store:     store,
		Logger:    logger,
		Interval:  interval,
		BatchSize: batchSize,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// SweepOnce deletes every record expired as of now and returns how many were removed.
func (r *IdempotencyReaper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := r.Now()
	var total int64
	for {
		n, err := r.Store.DeleteExpired(ctx, cutoff, r.BatchSize)
		total += n
		metrics.ObserveReaped(n)
		if err != nil {
			return total, err
		}
		if n < int64(r.BatchSize) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (r *IdempotencyReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		n, err := r.SweepOnce(ctx)
		if r.Logger != nil {
			if err != nil && ctx.Err() == nil {
				r.Logger.WithField("module", "IdempotencyReaper").Error("idempotency sweep failed: " + err.Error())
			} else if n > 0 {
				r.Logger.WithFields(logrus.Fields{"module": "IdempotencyReaper", "deleted": n}).Info("expired idempotency records deleted")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
