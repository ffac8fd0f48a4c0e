package outbox

import "github.com/baechuer/curve/breaker"

// Metrics is the publisher's narrow view of curve's metrics package,
// kept as an interface so outbox never imports prometheus directly —
// the same pattern Sender uses to keep this package broker-free.
type Metrics interface {
	SetOutboxPending(n int)
	IncOutboxPublished(n int)
	ObserveCircuitState(state breaker.State)
}
