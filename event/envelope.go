// Package event defines the canonical envelope transmitted to the broker.
// It is intentionally free of any broker, storage, or PII-transform
// dependency so it can be imported by call sites that only need the type,
// not the delivery pipeline.
package event

import (
	"fmt"
	"time"
)

// Severity classifies an event's importance.
type Severity string

const (
	SeverityTrace    Severity = "TRACE"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityTrace, SeverityDebug, SeverityInfo, SeverityWarn, SeverityError, SeverityCritical:
		return true
	default:
		return false
	}
}

// Source identifies the producing process.
type Source struct {
	Service       string `json:"service"`
	Version       string `json:"version,omitempty"`
	Instance      string `json:"instance,omitempty"`
	Host          string `json:"host,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
}

// Actor identifies who caused the event, when known. All fields optional —
// the assembler never fails on a missing actor.
type Actor struct {
	SubjectID string `json:"subject_id,omitempty"`
	Role      string `json:"role,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
}

// Trace carries externally assigned distributed-tracing ids. Propagating
// them is out of scope here; carrying them on the envelope is not.
type Trace struct {
	TraceID       string `json:"trace_id,omitempty"`
	SpanID        string `json:"span_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Schema names the payload's schema and its integer version, which must
// be >= 1.
type Schema struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// Metadata is the envelope's nested ambient-context record.
type Metadata struct {
	Source *Source           `json:"source,omitempty"`
	Actor  *Actor            `json:"actor,omitempty"`
	Trace  *Trace            `json:"trace,omitempty"`
	Schema *Schema           `json:"schema,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Payload is any in-process domain value carried by an envelope. It
// exposes its own event-type accessor so the assembler never has to
// special-case the caller's domain types.
type Payload interface {
	EventType() string
}

// Envelope is the immutable, canonical event record. Construct one via
// envelope.Assembler.Build, never directly — the zero value does not
// satisfy the package's invariants.
type Envelope struct {
	EventID     uint64    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Severity    Severity  `json:"severity"`
	OccurredAt  time.Time `json:"occurred_at"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Metadata    Metadata  `json:"metadata"`
	Payload     Payload   `json:"payload"`
}

// Validate checks the invariants a fully dispatched envelope must satisfy.
// Called by the codec before serialization and by tests exercising the
// round-trip property.
func (e Envelope) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("envelope: event_type must be non-empty")
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("envelope: severity %q is not a recognized level", e.Severity)
	}
	if e.Metadata.Schema != nil && e.Metadata.Schema.Version < 1 {
		return fmt.Errorf("envelope: schema.version must be >= 1, got %d", e.Metadata.Schema.Version)
	}
	if !e.PublishedAt.IsZero() && e.OccurredAt.After(e.PublishedAt) {
		return fmt.Errorf("envelope: occurred_at (%s) must not be after published_at (%s)", e.OccurredAt, e.PublishedAt)
	}
	return nil
}

// WithPublishedAt returns a copy of e stamped with publishedAt. Used by the
// dispatcher immediately before the broker write, ahead of the ack and
// after serialization.
func (e Envelope) WithPublishedAt(publishedAt time.Time) Envelope {
	e.PublishedAt = publishedAt
	return e
}
