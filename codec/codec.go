// Package codec serializes event.Envelope values to the wire, applying
// any registered PII transform immediately before encoding. It replaces
// the teacher's direct json.Marshal(payload) call
// (rabbitmq/publisher.go's PublishEvent) with a pluggable Codec so a
// deployment can swap JSON for a schema-registry-backed binary format
// without touching the dispatcher.
package codec

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/baechuer/curve/event"
	"github.com/baechuer/curve/pii"
)

// Codec serializes an envelope to bytes and back, applying the PII
// transform on the way out.
type Codec interface {
	Encode(ctx context.Context, env event.Envelope) ([]byte, error)
	Decode(data []byte) (event.Envelope, error)
}

// JSONCodec emits deterministic-field-order JSON with RFC3339
// millisecond-precision UTC timestamps. It runs the envelope's payload
// through engine.Transform (if a descriptor is registered for its type)
// before marshaling, so downstream consumers and the local backup file
// never see raw PII.
type JSONCodec struct {
	engine *pii.Engine
}

// NewJSONCodec constructs a JSONCodec. engine may be nil if no payload
// type in this process carries PII fields.
func NewJSONCodec(engine *pii.Engine) *JSONCodec {
	return &JSONCodec{engine: engine}
}

// wireEnvelope mirrors event.Envelope's field order exactly, so JSON key
// order is stable across Go versions and struct-field reordering doesn't
// silently change wire compatibility.
type wireEnvelope struct {
	EventID     uint64          `json:"event_id"`
	EventType   string          `json:"event_type"`
	Severity    event.Severity  `json:"severity"`
	OccurredAt  string          `json:"occurred_at"`
	PublishedAt string          `json:"published_at,omitempty"`
	Metadata    event.Metadata  `json:"metadata"`
	Payload     json.RawMessage `json:"payload"`
}

const rfc3339Millis = "2006-01-02T15:04:05.000Z07:00"

func (c *JSONCodec) Encode(ctx context.Context, env event.Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}

	payload := env.Payload
	if c.engine != nil {
		if _, ok := pii.DescriptorFor(payload); ok {
			cloned, err := clonePayload(payload)
			if err != nil {
				return nil, fmt.Errorf("codec: clone payload for PII transform: %w", err)
			}
			if err := c.engine.Transform(ctx, cloned); err != nil {
				return nil, fmt.Errorf("codec: transform payload: %w", err)
			}
			payload = cloned.(event.Payload)
		}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal payload: %w", err)
	}

	wire := wireEnvelope{
		EventID:    env.EventID,
		EventType:  env.EventType,
		Severity:   env.Severity,
		OccurredAt: env.OccurredAt.UTC().Format(rfc3339Millis),
		Metadata:   env.Metadata,
		Payload:    payloadJSON,
	}
	if !env.PublishedAt.IsZero() {
		wire.PublishedAt = env.PublishedAt.UTC().Format(rfc3339Millis)
	}

	return json.Marshal(wire)
}

func (c *JSONCodec) Decode(data []byte) (event.Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return event.Envelope{}, fmt.Errorf("codec: unmarshal envelope: %w", err)
	}

	occurredAt, err := parseTimestamp(wire.OccurredAt)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("codec: occurred_at: %w", err)
	}
	var publishedAt timeOrZero
	if wire.PublishedAt != "" {
		t, err := parseTimestamp(wire.PublishedAt)
		if err != nil {
			return event.Envelope{}, fmt.Errorf("codec: published_at: %w", err)
		}
		publishedAt = timeOrZero(t)
	}

	return event.Envelope{
		EventID:     wire.EventID,
		EventType:   wire.EventType,
		Severity:    wire.Severity,
		OccurredAt:  occurredAt,
		PublishedAt: publishedAt.toTime(),
		Metadata:    wire.Metadata,
		Payload:     rawPayload(wire.Payload),
	}, nil
}

// rawPayload lets a decoded envelope carry its payload as uninterpreted
// JSON until a caller knows the concrete type to unmarshal into.
type rawPayload json.RawMessage

func (r rawPayload) EventType() string { return "" }

// SchemaCodec is the binary variant used when serde.type is AVRO or
// PROTOBUF: it encodes tags and payload with the injected marshal function
// and writes three frames, each behind a 4-byte big-endian length prefix:
// a JSON header (id, type, severity, occurred_at, metadata), then the tags,
// then the payload. The registry URL is stored but not contacted by this
// type; config.Config requires one at startup for non-JSON serde types.
type SchemaCodec struct {
	registryURL string
	engine      *pii.Engine
	marshal     func(v any) ([]byte, error)
	unmarshal   func(data []byte, v any) error
}

// NewSchemaCodec constructs a SchemaCodec against a running schema
// registry. marshal/unmarshal are injected so AVRO and PROTOBUF variants
// can share this framing without this package importing either format's
// driver directly.
func NewSchemaCodec(registryURL string, engine *pii.Engine, marshal func(any) ([]byte, error), unmarshal func([]byte, any) error) *SchemaCodec {
	return &SchemaCodec{registryURL: registryURL, engine: engine, marshal: marshal, unmarshal: unmarshal}
}

func (c *SchemaCodec) Encode(ctx context.Context, env event.Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}

	payload := env.Payload
	if c.engine != nil {
		if _, ok := pii.DescriptorFor(payload); ok {
			cloned, err := clonePayload(payload)
			if err != nil {
				return nil, fmt.Errorf("codec: clone payload for PII transform: %w", err)
			}
			if err := c.engine.Transform(ctx, cloned); err != nil {
				return nil, fmt.Errorf("codec: transform payload: %w", err)
			}
			payload = cloned.(event.Payload)
		}
	}

	tagsBytes, err := c.marshal(env.Metadata.Tags)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal tags: %w", err)
	}
	payloadBytes, err := c.marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal payload: %w", err)
	}

	header, err := json.Marshal(struct {
		EventID    uint64         `json:"event_id"`
		EventType  string         `json:"event_type"`
		Severity   event.Severity `json:"severity"`
		OccurredAt string         `json:"occurred_at"`
		Metadata   event.Metadata `json:"metadata"`
	}{
		EventID:    env.EventID,
		EventType:  env.EventType,
		Severity:   env.Severity,
		OccurredAt: env.OccurredAt.UTC().Format(rfc3339Millis),
		Metadata:   env.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("codec: marshal header: %w", err)
	}

	out := make([]byte, 0, 4+len(header)+4+len(tagsBytes)+4+len(payloadBytes))
	out = appendFramed(out, header)
	out = appendFramed(out, tagsBytes)
	out = appendFramed(out, payloadBytes)
	return out, nil
}

func (c *SchemaCodec) Decode(data []byte) (event.Envelope, error) {
	header, rest, err := readFrame(data)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("codec: header frame: %w", err)
	}
	_, rest, err = readFrame(rest)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("codec: tags frame: %w", err)
	}
	payloadBytes, _, err := readFrame(rest)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("codec: payload frame: %w", err)
	}

	var h struct {
		EventID    uint64         `json:"event_id"`
		EventType  string         `json:"event_type"`
		Severity   event.Severity `json:"severity"`
		OccurredAt string         `json:"occurred_at"`
		Metadata   event.Metadata `json:"metadata"`
	}
	if err := json.Unmarshal(header, &h); err != nil {
		return event.Envelope{}, fmt.Errorf("codec: unmarshal header: %w", err)
	}
	occurredAt, err := parseTimestamp(h.OccurredAt)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("codec: occurred_at: %w", err)
	}

	return event.Envelope{
		EventID:    h.EventID,
		EventType:  h.EventType,
		Severity:   h.Severity,
		OccurredAt: occurredAt,
		Metadata:   h.Metadata,
		Payload:    rawPayload(payloadBytes),
	}, nil
}

func appendFramed(out []byte, chunk []byte) []byte {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(chunk)))
	out = append(out, lenPrefix[:]...)
	return append(out, chunk...)
}

func readFrame(data []byte) (chunk, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, fmt.Errorf("truncated frame: want %d bytes, have %d", n, len(data))
	}
	return data[:n], data[n:], nil
}
