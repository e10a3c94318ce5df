// Package worker runs the background jobs that keep slot assignments and
// registration records tidy.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runEvery calls tick immediately and then every interval until ctx is done.
func runEvery(ctx context.Context, interval time.Duration, log *zap.Logger, name string, tick func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("worker started", zap.String("worker", name), zap.Duration("interval", interval))
	run := func() {
		if err := tick(ctx); err != nil && ctx.Err() == nil {
			log.Error("worker tick failed", zap.String("worker", name), zap.Error(err))
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped", zap.String("worker", name))
			return
		case <-ticker.C:
			run()
		}
	}
}
