package outbox

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/curve/retry"
)

type fakeStore struct {
	mu          sync.Mutex
	pending     []Record
	published   []uint64
	retried     map[uint64]Record
	failed      map[uint64]string
	countCalls  int
}

func newFakeStore(rows ...Record) *fakeStore {
	return &fakeStore{pending: rows, retried: map[uint64]Record{}, failed: map[uint64]string{}}
}

func (s *fakeStore) Save(ctx context.Context, record Record) error { return nil }

func (s *fakeStore) LeaseBatch(ctx context.Context, limit int, now time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(s.pending) {
		n = len(s.pending)
	}
	leased := s.pending[:n]
	s.pending = s.pending[n:]
	return leased, nil
}

func (s *fakeStore) MarkPublished(ctx context.Context, ids []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ids...)
	return nil
}

func (s *fakeStore) MarkRetry(ctx context.Context, id uint64, nextRetryAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retried[id] = Record{ID: id, NextRetryAt: nextRetryAt, LastError: lastError}
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id uint64, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = lastError
	return nil
}

func (s *fakeStore) DeletePublishedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeStore) CountPending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCalls++
	return len(s.pending), nil
}

type fakeSender struct {
	mu      sync.Mutex
	failIDs map[uint64]bool
	sent    []uint64
}

func (s *fakeSender) Send(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, record.ID)
	if s.failIDs[record.ID] {
		return fmt.Errorf("send failed for %d", record.ID)
	}
	return nil
}

func testPublisherConfig() PublisherConfig {
	return PublisherConfig{
		PollInterval:    10 * time.Millisecond,
		BatchSize:       50,
		DynamicBatching: false,
		SendTimeout:     time.Second,
		RetryPolicy:     retry.DefaultPolicy(),
		MaxRetries:      5,
		BreakerEnabled:  false,
	}
}

func TestPublisher_Iterate_PublishesSuccessfulRows(t *testing.T) {
	store := newFakeStore(Record{ID: 1}, Record{ID: 2})
	sender := &fakeSender{failIDs: map[uint64]bool{}}
	p := NewPublisher(store, sender, testPublisherConfig(), zerolog.Nop())

	require.NoError(t, p.iterate(context.Background()))

	assert.ElementsMatch(t, []uint64{1, 2}, store.published)
	assert.Empty(t, store.failed)
	assert.Empty(t, store.retried)
}

func TestPublisher_Iterate_SchedulesRetryOnFailure(t *testing.T) {
	store := newFakeStore(Record{ID: 1, RetryCount: 0})
	sender := &fakeSender{failIDs: map[uint64]bool{1: true}}
	p := NewPublisher(store, sender, testPublisherConfig(), zerolog.Nop())

	require.NoError(t, p.iterate(context.Background()))

	assert.Empty(t, store.published)
	assert.Contains(t, store.retried, uint64(1))
	assert.Empty(t, store.failed)
}

func TestPublisher_Iterate_MarksFailedAtMaxRetries(t *testing.T) {
	cfg := testPublisherConfig()
	cfg.MaxRetries = 3
	store := newFakeStore(Record{ID: 1, RetryCount: 2}) // retry_count+1 >= 3
	sender := &fakeSender{failIDs: map[uint64]bool{1: true}}
	p := NewPublisher(store, sender, cfg, zerolog.Nop())

	require.NoError(t, p.iterate(context.Background()))

	assert.Empty(t, store.published)
	assert.Empty(t, store.retried)
	assert.Contains(t, store.failed, uint64(1))
}

func TestPublisher_Iterate_EmptyBatchIsANoop(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{failIDs: map[uint64]bool{}}
	p := NewPublisher(store, sender, testPublisherConfig(), zerolog.Nop())

	require.NoError(t, p.iterate(context.Background()))
	assert.Empty(t, sender.sent)
}

func TestPublisher_Iterate_BreakerOpensAfterFiveConsecutiveFailures(t *testing.T) {
	cfg := testPublisherConfig()
	cfg.BreakerEnabled = true
	cfg.BatchSize = 5 // the first iterate leases exactly the five failing rows
	rows := make([]Record, 5)
	for i := range rows {
		rows[i] = Record{ID: uint64(i + 1)}
	}
	store := newFakeStore(rows...)
	store.pending = append(store.pending, Record{ID: 99}) // leased by the second iterate
	failAll := map[uint64]bool{}
	for _, r := range rows {
		failAll[r.ID] = true
	}
	sender := &fakeSender{failIDs: failAll}
	p := NewPublisher(store, sender, cfg, zerolog.Nop())

	require.NoError(t, p.iterate(context.Background()))
	assert.Len(t, sender.sent, 5)

	// five consecutive failures opened the breaker; the next iteration must
	// skip leasing/sending entirely.
	require.NoError(t, p.iterate(context.Background()))
	assert.Len(t, sender.sent, 5)
	assert.Len(t, store.pending, 1) // row 99 still sitting PENDING, untouched
}
