package stats

import (
	"context"
	"fmt"

	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/models"
)

// Counters tracks the commented/skipped/processed run counters
type Counters struct {
	store db.Store
}

// NewCounters creates a new counter set
func NewCounters(store db.Store) *Counters {
	return &Counters{store: store}
}

// IncrementCommented counts a posted comment as processed
func (c *Counters) IncrementCommented(ctx context.Context) error {
	return c.increment(ctx, db.KeyCommentedCount)
}

// IncrementSkipped counts a skip as processed
func (c *Counters) IncrementSkipped(ctx context.Context) error {
	return c.increment(ctx, db.KeySkippedCount)
}

func (c *Counters) increment(ctx context.Context, key string) error {
	if _, err := c.store.Incr(ctx, key); err != nil {
		return fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if _, err := c.store.Incr(ctx, db.KeyProcessedCount); err != nil {
		return fmt.Errorf("failed to increment %s: %w", db.KeyProcessedCount, err)
	}
	return nil
}

// Snapshot reads all counters; missing counters read as zero
func (c *Counters) Snapshot(ctx context.Context) (models.Counters, error) {
	var counters models.Counters
	fields := []struct {
		key  string
		dest *int
	}{
		{db.KeyCommentedCount, &counters.Commented},
		{db.KeySkippedCount, &counters.Skipped},
		{db.KeyProcessedCount, &counters.Processed},
	}

	for _, f := range fields {
		if _, err := c.store.Get(ctx, f.key, f.dest); err != nil {
			return models.Counters{}, fmt.Errorf("failed to read %s: %w", f.key, err)
		}
	}
	return counters, nil
}

// Reset zeroes every counter
func (c *Counters) Reset(ctx context.Context) error {
	if err := c.store.Delete(ctx, db.KeyCommentedCount, db.KeySkippedCount, db.KeyProcessedCount); err != nil {
		return fmt.Errorf("failed to reset counters: %w", err)
	}
	return nil
}
