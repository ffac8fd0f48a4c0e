package codec

import (
	"fmt"
	"reflect"
	"time"
)

// clonePayload returns a pointer to a fresh copy of p's underlying value,
// so pii.Engine.Transform (which requires a settable pointer) can mutate
// it without touching the caller's original payload.
func clonePayload(p any) (any, error) {
	rv := reflect.ValueOf(p)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("payload pointer is nil")
		}
		cp := reflect.New(rv.Elem().Type())
		cp.Elem().Set(rv.Elem())
		return cp.Interface(), nil
	}
	cp := reflect.New(rv.Type())
	cp.Elem().Set(rv)
	return cp.Interface(), nil
}

// timeOrZero lets Decode track "published_at was absent" distinctly from
// a published_at sitting exactly at the zero time.
type timeOrZero time.Time

func (t timeOrZero) toTime() time.Time { return time.Time(t) }

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(rfc3339Millis, s)
}
