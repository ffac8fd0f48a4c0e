package outbox

import (
	"context"
	"time"
)

// Store is the transactional outbox's storage contract. Save is expected
// to run inside the caller's own database transaction (alongside the
// business write it accompanies); every other method owns its own
// transaction.
type Store interface {
	// Save persists record as part of the caller's transaction.
	Save(ctx context.Context, record Record) error

	// LeaseBatch returns up to limit PENDING rows with next_retry_at <= now,
	// atomically marking them IN_FLIGHT so no other instance can lease the
	// same rows concurrently.
	LeaseBatch(ctx context.Context, limit int, now time.Time) ([]Record, error)

	// MarkPublished transitions the given ids to PUBLISHED in one
	// statement.
	MarkPublished(ctx context.Context, ids []uint64) error

	// MarkRetry transitions id back to PENDING with an incremented retry
	// count, a new next_retry_at, and the triggering error recorded.
	MarkRetry(ctx context.Context, id uint64, nextRetryAt time.Time, lastError string) error

	// MarkFailed transitions id to the terminal FAILED state.
	MarkFailed(ctx context.Context, id uint64, lastError string) error

	// DeletePublishedOlderThan deletes PUBLISHED rows with published_at
	// before cutoff, returning the number of rows removed.
	DeletePublishedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// CountPending returns the number of PENDING rows. Implementations may
	// cache this value briefly; callers must tolerate staleness.
	CountPending(ctx context.Context) (int, error)
}
