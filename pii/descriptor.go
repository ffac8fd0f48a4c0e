// Package pii implements field-level PII transforms applied during
// serialization. Sensitive fields are declared once, at program init, via
// a per-type Descriptor registered at startup, rather than discovered by
// walking struct tags with reflection on every call.
package pii

import (
	"fmt"
	"reflect"
	"sync"
)

// Type classifies the kind of sensitive data a field holds.
type Type string

const (
	TypeEmail   Type = "EMAIL"
	TypePhone   Type = "PHONE"
	TypeName    Type = "NAME"
	TypeAddress Type = "ADDRESS"
	TypeGeneric Type = "GENERIC"
)

// Strategy is the transform applied to a declared-sensitive field.
type Strategy string

const (
	StrategyMask    Strategy = "MASK"
	StrategyEncrypt Strategy = "ENCRYPT"
	StrategyHash    Strategy = "HASH"
)

// FieldRule pairs a struct field path with its PII type and strategy.
// FieldPath uses "." to address nested fields, the same dot path
// convention used elsewhere for reporting request field errors.
type FieldRule struct {
	FieldPath string
	PIIType   Type
	Strategy  Strategy
}

// Descriptor maps a type's sensitive fields to their transform rules. The
// codec consults a Descriptor at serialization time; no per-call
// reflection walk of struct tags happens on the hot path.
type Descriptor struct {
	Rules []FieldRule
}

// RuleFor returns the rule for fieldPath, if any was declared.
func (d Descriptor) RuleFor(fieldPath string) (FieldRule, bool) {
	for _, r := range d.Rules {
		if r.FieldPath == fieldPath {
			return r, true
		}
	}
	return FieldRule{}, false
}

var (
	registryMu sync.RWMutex
	registry   = map[reflect.Type]Descriptor{}
)

// Register associates a Descriptor with type T, once, at program init.
// Calling Register twice for the same type overwrites the prior
// descriptor — useful for tests, surprising in production, so callers
// should only ever register once per process.
func Register[T any](rules ...FieldRule) {
	var zero T
	t := reflect.TypeOf(zero)
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = Descriptor{Rules: rules}
}

// DescriptorFor looks up the Descriptor registered for v's dynamic type.
func DescriptorFor(v any) (Descriptor, bool) {
	t := reflect.TypeOf(v)
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[t]
	return d, ok
}

// MustDescriptorFor is DescriptorFor but panics if nothing is registered —
// intended for codec wiring where an unregistered PII-bearing type is a
// programming error caught at startup, not a runtime condition to handle.
func MustDescriptorFor(v any) Descriptor {
	d, ok := DescriptorFor(v)
	if !ok {
		panic(fmt.Sprintf("pii: no descriptor registered for %T", v))
	}
	return d
}
