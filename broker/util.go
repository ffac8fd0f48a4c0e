package broker

import (
	"errors"
	"reflect"
	"strconv"
)

func formatEventID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// errorClassName approximates Java's "exception class name" field for a
// Go error: it walks to the innermost wrapped error and reports its
// concrete type name. Broker and codec errors are plain fmt.Errorf wraps
// around a sentinel or a driver error, so this yields a stable, non-empty
// value satisfying the DLQ record's exceptionType field (§3 "exception
// class name") without this package needing a Java-style exception
// hierarchy.
func errorClassName(err error) string {
	if err == nil {
		return ""
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return reflect.TypeOf(err).String()
}
