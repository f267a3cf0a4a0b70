package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleaner purges expired records, either on demand or on a ticker.
type Cleaner struct {
	store  Store
	batch  int
	clock  func() time.Time
	logger *zap.Logger
}

// NewCleaner returns a Cleaner deleting at most batch records per store call.
func NewCleaner(store Store, batch int, logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch <= 0 {
		batch = defaultCleanupBatch
	}
	return &Cleaner{store: store, batch: batch, clock: time.Now, logger: logger}
}

// Purge deletes expired records in batches until a short batch signals the backlog is gone
// or maxBatches is reached. It returns the number removed.
func (c *Cleaner) Purge(ctx context.Context, maxBatches int) (int, error) {
	if maxBatches <= 0 {
		maxBatches = 10
	}
	total := 0
	for i := 0; i < maxBatches; i++ {
		removed, err := c.store.CleanupExpired(ctx, c.clock(), c.batch)
		total += removed
		if err != nil {
			return total, err
		}
		if removed < c.batch {
			break
		}
	}
	return total, nil
}

// Run purges every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := c.Purge(ctx, 0)
			if err != nil {
				c.logger.Warn("idempotency cleanup failed", zap.Int("removed", removed), zap.Error(err))
				continue
			}
			if removed > 0 {
				c.logger.Info("idempotency cleanup", zap.Int("removed", removed))
			}
		}
	}
}
