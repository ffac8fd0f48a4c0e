package outbox

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// deleteBatchSize bounds a single cleanup pass so a large backlog never
// holds one long-running DELETE against the table.
const deleteBatchSize = 500

// CleanupConfig controls the scheduled PUBLISHED-row reaper.
type CleanupConfig struct {
	Cron          string // standard 5-field cron expression
	RetentionDays int
}

// Cleanup runs Store.DeletePublishedOlderThan on a cron schedule,
// generalizing the join-service idempotency-key reaper's
// ticker-driven delete-and-log pattern (infrastructure/postgres/cleanup.go)
// to a configurable cron expression and bounded batches.
type Cleanup struct {
	store Store
	cfg   CleanupConfig
	log   zerolog.Logger
	sched *cron.Cron
}

func NewCleanup(store Store, cfg CleanupConfig, log zerolog.Logger) *Cleanup {
	return &Cleanup{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "outbox_cleanup").Logger(),
	}
}

// Start registers the cron job and begins running it. Cancelling ctx ends
// the schedule; Start itself does not block.
func (c *Cleanup) Start(ctx context.Context) error {
	c.sched = cron.New()
	_, err := c.sched.AddFunc(c.cfg.Cron, func() { c.runOnce(ctx) })
	if err != nil {
		return err
	}
	c.sched.Start()
	go func() {
		<-ctx.Done()
		c.sched.Stop()
		c.log.Info().Msg("stopped")
	}()
	return nil
}

func (c *Cleanup) runOnce(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -c.cfg.RetentionDays)
	var total int64
	for {
		n, err := c.store.DeletePublishedOlderThan(ctx, cutoff)
		if err != nil {
			c.log.Warn().Err(err).Msg("outbox cleanup failed")
			return
		}
		total += n
		if n < deleteBatchSize {
			break
		}
	}
	if total > 0 {
		c.log.Info().Int64("deleted", total).Msg("published outbox rows cleaned up")
	}
}
