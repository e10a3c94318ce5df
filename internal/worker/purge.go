package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const purgeBatchSize = 100

// Purger permanently removes records soft-deleted before cutoff.
type Purger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// PurgeWorker removes soft-deleted registrations once they are older than
// the retention period.
type PurgeWorker struct {
	purger    Purger
	interval  time.Duration
	retention time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// NewPurgeWorker constructs a PurgeWorker.
func NewPurgeWorker(purger Purger, interval, retention time.Duration, log *zap.Logger) *PurgeWorker {
	return &PurgeWorker{
		purger:    purger,
		interval:  interval,
		retention: retention,
		log:       log.Named("purge"),
		now:       time.Now,
	}
}

// Run purges every interval until ctx is cancelled.
func (w *PurgeWorker) Run(ctx context.Context) {
	runEvery(ctx, w.interval, w.log, "purge", func(ctx context.Context) error {
		_, err := w.PurgeOnce(ctx)
		return err
	})
}

// PurgeOnce drains everything past retention in batches.
func (w *PurgeWorker) PurgeOnce(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.retention)
	total := 0
	for {
		n, err := w.purger.PurgeExpired(ctx, cutoff, purgeBatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < purgeBatchSize || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		w.log.Info("purged soft-deleted registrations", zap.Int("count", total), zap.Time("cutoff", cutoff))
	}
	return total, nil
}
