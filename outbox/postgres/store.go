// Package postgres implements outbox.Store on top of pgx/v5, generalizing
// the join-service outbox worker's SELECT ... FOR UPDATE SKIP LOCKED
// lease pattern (infrastructure/postgres/outbox_worker.go) to the richer,
// aggregate-addressable Record shape and the three schema lifecycle modes.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baechuer/curve/outbox"
)

// SchemaMode mirrors config.SchemaMode without importing the config
// package, keeping this store usable standalone.
type SchemaMode string

const (
	SchemaEmbedded SchemaMode = "embedded"
	SchemaAlways   SchemaMode = "always"
	SchemaNever    SchemaMode = "never"
)

const ddl = `
CREATE TABLE IF NOT EXISTS outbox (
	id              BIGINT PRIMARY KEY,
	aggregate_type  TEXT NOT NULL,
	aggregate_id    TEXT NOT NULL,
	event_type      TEXT NOT NULL,
	payload_bytes   BYTEA NOT NULL,
	metadata_bytes  BYTEA NOT NULL,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	retry_count     INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	next_retry_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_lease ON outbox (next_retry_at) WHERE status = 'PENDING';
CREATE INDEX IF NOT EXISTS idx_outbox_cleanup ON outbox (published_at) WHERE status = 'PUBLISHED';
`

const pendingCountTTL = 5 * time.Second

// Store is a pgx/v5-backed outbox.Store. Embed it behind the generic
// outbox.Store interface so the publisher never imports pgx directly.
type Store struct {
	pool *pgxpool.Pool

	countMu     sync.Mutex
	countCached int
	countAt     time.Time
}

// New wraps an existing pool. If mode is SchemaAlways or SchemaEmbedded,
// EnsureSchema should be called once at startup; SchemaNever assumes an
// externally managed table matching ddl.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying connection pool. Safe to call once, at
// process shutdown.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema applies the embedded DDL according to mode. SchemaNever is
// a no-op: the table is assumed externally managed. Embedded and Always
// both run the same CREATE ... IF NOT EXISTS statements; the core never
// migrates an existing table silently, so there is no ALTER path.
func (s *Store) EnsureSchema(ctx context.Context, mode SchemaMode) error {
	if mode == SchemaNever {
		return nil
	}
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *Store) Save(ctx context.Context, record outbox.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_bytes, metadata_bytes, status, retry_count, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.PayloadBytes, record.MetadataBytes, outbox.StatusPending, record.RetryCount)
	return err
}

func (s *Store) LeaseBatch(ctx context.Context, limit int, now time.Time) ([]outbox.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_bytes, metadata_bytes, status, retry_count, last_error, created_at, next_retry_at, published_at
		FROM outbox
		WHERE status = $1 AND next_retry_at <= $2
		ORDER BY next_retry_at ASC, id ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, outbox.StatusPending, now, limit)
	if err != nil {
		return nil, err
	}

	var leased []outbox.Record
	var ids []uint64
	for rows.Next() {
		var r outbox.Record
		var publishedAt *time.Time
		if err := rows.Scan(&r.ID, &r.AggregateType, &r.AggregateID, &r.EventType, &r.PayloadBytes, &r.MetadataBytes, &r.Status, &r.RetryCount, &r.LastError, &r.CreatedAt, &r.NextRetryAt, &publishedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if publishedAt != nil {
			r.PublishedAt = *publishedAt
		}
		leased = append(leased, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `UPDATE outbox SET status = $1 WHERE id = ANY($2)`, outbox.StatusInFlight, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	for i := range leased {
		leased[i].Status = outbox.StatusInFlight
	}
	return leased, nil
}

func (s *Store) MarkPublished(ctx context.Context, ids []uint64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status = $1, published_at = now() WHERE id = ANY($2)`, outbox.StatusPublished, ids)
	return err
}

func (s *Store) MarkRetry(ctx context.Context, id uint64, nextRetryAt time.Time, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox
		SET status = $1, retry_count = retry_count + 1, next_retry_at = $2, last_error = $3
		WHERE id = $4
	`, outbox.StatusPending, nextRetryAt, lastError, id)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id uint64, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET status = $1, last_error = $2 WHERE id = $3
	`, outbox.StatusFailed, lastError, id)
	return err
}

func (s *Store) DeletePublishedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM outbox
		WHERE id IN (SELECT id FROM outbox WHERE status = $1 AND published_at < $2 LIMIT 500)
	`, outbox.StatusPublished, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CountPending(ctx context.Context) (int, error) {
	s.countMu.Lock()
	if time.Since(s.countAt) < pendingCountTTL {
		n := s.countCached
		s.countMu.Unlock()
		return n, nil
	}
	s.countMu.Unlock()

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE status = $1`, outbox.StatusPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}

	s.countMu.Lock()
	s.countCached = n
	s.countAt = time.Now()
	s.countMu.Unlock()
	return n, nil
}

var _ outbox.Store = (*Store)(nil)
