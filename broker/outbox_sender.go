package broker

import (
	"context"

	"github.com/baechuer/curve/outbox"
)

// OutboxSender adapts a Dispatcher to outbox.Sender, so the outbox
// publisher loop can hand a leased Record straight to the same 3-tier
// recovery chain non-outbox callers go through, without outbox importing
// this package (outbox.Sender is the narrow structural interface it
// depends on instead).
type OutboxSender struct {
	Dispatcher *Dispatcher
}

// Send partitions on the outbox row's aggregate id when present, falling
// back to the event id, and runs it through Tier 1/2/3 recovery.
func (s OutboxSender) Send(ctx context.Context, record outbox.Record) error {
	key := record.AggregateID
	if key == "" {
		key = formatEventID(record.ID)
	}
	return s.Dispatcher.DispatchOutboxRecord(ctx, record.ID, key, record.PayloadBytes)
}

var _ outbox.Sender = OutboxSender{}
