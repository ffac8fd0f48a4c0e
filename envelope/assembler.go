// Package envelope builds canonical event.Envelope values from an
// in-process payload. It consumes the snowflake id generator
// and a ctxprovider.Provider but knows nothing about PII transforms,
// outbox storage, or broker dispatch — those are downstream of the
// envelope it hands back.
package envelope

import (
	"context"
	"fmt"

	"github.com/baechuer/curve/ctxprovider"
	"github.com/baechuer/curve/event"
	"github.com/baechuer/curve/snowflake"
)

// IDGenerator is the subset of snowflake.Generator the assembler needs,
// kept as an interface so tests can supply a deterministic stub.
type IDGenerator interface {
	Next() (uint64, error)
}

// Clock supplies occurred_at at assembly time. It shares its shape with
// snowflake.Clock so a single implementation backs both.
type Clock = snowflake.Clock

// Assembler turns a payload into a fully-populated event.Envelope.
type Assembler struct {
	ids      IDGenerator
	clock    Clock
	provider ctxprovider.Provider
}

// New constructs an Assembler. provider may be nil, in which case every
// envelope carries an empty Metadata — useful for tests and for callers
// who only need Source/Schema wired via ctxprovider.Static.
func New(ids IDGenerator, clock Clock, provider ctxprovider.Provider) *Assembler {
	return &Assembler{ids: ids, clock: clock, provider: provider}
}

// Build allocates an id, stamps occurred_at, resolves ambient metadata,
// and returns a populated envelope. It consumes
// exactly one Snowflake id and reads the context provider exactly once,
// per call, regardless of payload shape.
func (a *Assembler) Build(ctx context.Context, payload event.Payload, severity event.Severity) (event.Envelope, error) {
	if payload == nil {
		return event.Envelope{}, fmt.Errorf("envelope: payload must not be nil")
	}
	eventType := payload.EventType()
	if eventType == "" {
		return event.Envelope{}, fmt.Errorf("envelope: payload.EventType() must be non-empty")
	}
	if !severity.Valid() {
		return event.Envelope{}, fmt.Errorf("envelope: severity %q is not recognized", severity)
	}

	id, err := a.ids.Next()
	if err != nil {
		return event.Envelope{}, fmt.Errorf("envelope: allocate id: %w", err)
	}

	var md event.Metadata
	if a.provider != nil {
		md = a.provider.CurrentMetadata(ctx, payload)
	}

	occurredAt := a.clock.Now()

	env := event.Envelope{
		EventID:    id,
		EventType:  eventType,
		Severity:   severity,
		OccurredAt: occurredAt,
		Metadata:   md,
		Payload:    payload,
	}
	return env, nil
}
