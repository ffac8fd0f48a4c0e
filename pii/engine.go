package pii

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Engine applies a registered Descriptor's field rules to a payload in
// place, just before serialization. It is the single call site that
// touches struct fields by reflection — everything upstream of it
// addresses fields by name, not by walking arbitrary private state.
type Engine struct {
	keys KeyProvider
	salt string
}

// NewEngine constructs an Engine. keys may be nil if no field in the
// registered descriptors uses the ENCRYPT strategy.
func NewEngine(keys KeyProvider, hashSalt string) *Engine {
	return &Engine{keys: keys, salt: hashSalt}
}

// Transform mutates v (a pointer to a struct registered via Register) by
// applying each declared field rule's strategy to the addressed field.
// Fields not named by any rule are left untouched. v must be a non-nil
// pointer to the struct the descriptor was registered against; anything
// else is a programming error.
func (e *Engine) Transform(ctx context.Context, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("pii: Transform requires a non-nil pointer, got %T", v)
	}

	descriptor, ok := DescriptorFor(rv.Elem().Interface())
	if !ok {
		return fmt.Errorf("pii: no descriptor registered for %T", v)
	}

	for _, rule := range descriptor.Rules {
		field, err := resolveField(rv.Elem(), rule.FieldPath)
		if err != nil {
			return fmt.Errorf("pii: %s: %w", rule.FieldPath, err)
		}
		if field.Kind() != reflect.String {
			return fmt.Errorf("pii: %s: declared PII field must be a string, got %s", rule.FieldPath, field.Kind())
		}
		if !field.CanSet() {
			return fmt.Errorf("pii: %s: field is not settable (unexported?)", rule.FieldPath)
		}

		transformed, err := e.apply(ctx, rule, field.String())
		if err != nil {
			return fmt.Errorf("pii: %s: %w", rule.FieldPath, err)
		}
		field.SetString(transformed)
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, rule FieldRule, value string) (string, error) {
	switch rule.Strategy {
	case StrategyMask:
		return Mask(rule.PIIType, value), nil
	case StrategyHash:
		return Hash(e.salt, value), nil
	case StrategyEncrypt:
		if e.keys == nil {
			return "", fmt.Errorf("ENCRYPT strategy requires a key provider")
		}
		return Encrypt(ctx, e.keys, value)
	default:
		return "", fmt.Errorf("unrecognized strategy %q", rule.Strategy)
	}
}

// resolveField walks a dot-separated field path from root, dereferencing
// pointers as it goes. An intermediate nil pointer yields an error rather
// than a panic — a payload missing an optional nested struct simply has
// no PII to transform there, which the caller should treat as a
// descriptor/payload mismatch, not silently skip.
func resolveField(root reflect.Value, path string) (reflect.Value, error) {
	current := root
	for _, part := range strings.Split(path, ".") {
		for current.Kind() == reflect.Ptr {
			if current.IsNil() {
				return reflect.Value{}, fmt.Errorf("nil pointer while resolving path segment %q", part)
			}
			current = current.Elem()
		}
		if current.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("path segment %q: not addressable on a %s", part, current.Kind())
		}
		current = current.FieldByName(part)
		if !current.IsValid() {
			return reflect.Value{}, fmt.Errorf("no such field %q", part)
		}
	}
	return current, nil
}
