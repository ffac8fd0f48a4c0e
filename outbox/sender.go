package outbox

import "context"

// Sender is the outbox publisher's view of the broker dispatcher: enough
// to hand off one leased row's bytes, nothing else. The broker package's
// OutboxSender adapts its Dispatcher to this interface, keeping outbox
// free of any broker import.
type Sender interface {
	Send(ctx context.Context, record Record) error
}
