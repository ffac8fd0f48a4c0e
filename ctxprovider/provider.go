// Package ctxprovider supplies the envelope assembler's ambient-metadata
// sub-providers: actor, trace, source, schema, and tags, each of which may
// return null fields. This replaces ad-hoc per-request MDC pulls with an
// explicit, composable capability interface instead of a context.Value
// lookup buried inside logging calls.
package ctxprovider

import (
	"context"

	"github.com/baechuer/curve/event"
)

// Provider resolves ambient metadata for a payload. Implementations must
// never fail on missing optional data: return a Metadata with nil
// sub-fields rather than an error.
type Provider interface {
	CurrentMetadata(ctx context.Context, payload event.Payload) event.Metadata
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, payload event.Payload) event.Metadata

func (f ProviderFunc) CurrentMetadata(ctx context.Context, payload event.Payload) event.Metadata {
	return f(ctx, payload)
}

// Chain composes sub-providers, one per metadata field. Each sub-provider
// contributes only its own field (Source only Source, Actor only Actor,
// and so on); any other fields it returns are ignored, and a nil
// sub-provider or a nil result leaves that field nil.
type Chain struct {
	Source Provider
	Actor  Provider
	Trace  Provider
	Schema Provider
	Tags   Provider
}

func (c Chain) CurrentMetadata(ctx context.Context, payload event.Payload) event.Metadata {
	var md event.Metadata
	if c.Source != nil {
		if m := c.Source.CurrentMetadata(ctx, payload); m.Source != nil {
			md.Source = m.Source
		}
	}
	if c.Actor != nil {
		if m := c.Actor.CurrentMetadata(ctx, payload); m.Actor != nil {
			md.Actor = m.Actor
		}
	}
	if c.Trace != nil {
		if m := c.Trace.CurrentMetadata(ctx, payload); m.Trace != nil {
			md.Trace = m.Trace
		}
	}
	if c.Schema != nil {
		if m := c.Schema.CurrentMetadata(ctx, payload); m.Schema != nil {
			md.Schema = m.Schema
		}
	}
	if c.Tags != nil {
		if m := c.Tags.CurrentMetadata(ctx, payload); m.Tags != nil {
			md.Tags = m.Tags
		}
	}
	return md
}

// Static returns a Provider that always yields the same metadata, useful
// for a service's fixed Source block (service name, version, host).
func Static(md event.Metadata) Provider {
	return ProviderFunc(func(context.Context, event.Payload) event.Metadata {
		return md
	})
}
