// Package outbox implements the transactional-outbox store contract and
// the publisher loop that drains it, generalizing the join-service
// outbox's columns (id, message_id, trace_id, routing_key, payload,
// attempt, status, next_retry_at, last_error) and its
// SELECT ... FOR UPDATE SKIP LOCKED lease pattern
// (infrastructure/postgres/outbox_worker.go) to an aggregate-addressable,
// metadata-carrying record.
package outbox

import "time"

// Status is a Record's position in the PENDING -> IN_FLIGHT ->
// {PENDING, PUBLISHED, FAILED} state machine. PUBLISHED and FAILED are
// terminal for normal flow; FAILED may be reset by an external operator.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusInFlight  Status = "IN_FLIGHT"
	StatusPublished Status = "PUBLISHED"
	StatusFailed    Status = "FAILED"
)

// Record is one row of the transactional outbox, written inside the same
// database transaction as the business change it announces.
type Record struct {
	ID            uint64
	AggregateType string
	AggregateID   string
	EventType     string
	PayloadBytes  []byte
	MetadataBytes []byte
	Status        Status
	RetryCount    int
	LastError     string
	CreatedAt     time.Time
	NextRetryAt   time.Time
	PublishedAt   time.Time
}
