package session

import (
	"context"
	"time"

	"github.com/marlowe-systems/aegis-core/internal/infrastructure/logging"
)

// Reaper runs Store.Reap on a fixed interval, independent of request
// traffic. It stops when its context is cancelled.
type Reaper struct {
	store    *Store
	logger   *logging.Logger
	interval time.Duration
}

// NewReaper creates a reaper for the given store.
func NewReaper(store *Store, logger *logging.Logger, interval time.Duration) *Reaper {
	return &Reaper{
		store:    store,
		logger:   logger.With("component", "reaper"),
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, reaping once per interval. A failed
// sweep is logged and retried on the next tick; it never stops the loop.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			if err := r.store.Reap(ctx); err != nil {
				r.logger.Error("session reap failed", "error", err)
			}
		}
	}
}
