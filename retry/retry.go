// Package retry computes exponential backoff delays and runs a function
// under a bounded retry loop, generalizing the join-service outbox
// worker's computeNextRetry (base 2^attempt seconds clamped to [5s,30m]
// with +/-20% jitter) into a configurable initial_interval *
// multiplier^retry_count formula clamped to a max interval.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy configures exponential backoff.
type Policy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxRetries      int // 0 means unbounded
	JitterFraction  float64
}

// DefaultPolicy mirrors the join-service outbox worker's retry shape.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 5 * time.Second,
		Multiplier:      2,
		MaxInterval:     30 * time.Minute,
		MaxRetries:      0,
		JitterFraction:  0.2,
	}
}

// NextDelay returns the backoff delay for the given zero-based retry
// count, with jitter of +/- JitterFraction applied.
func (p Policy) NextDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	base := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(retryCount))
	if p.MaxInterval > 0 && base > float64(p.MaxInterval) {
		base = float64(p.MaxInterval)
	}
	if base < float64(p.InitialInterval) {
		base = float64(p.InitialInterval)
	}

	d := time.Duration(base)
	if p.JitterFraction <= 0 {
		return d
	}
	spread := int64(float64(d) * p.JitterFraction)
	if spread <= 0 {
		return d
	}
	jitter := rand.Int63n(2*spread) - spread
	return d + time.Duration(jitter)
}

// ErrMaxRetriesExceeded is joined with the last error once the initial
// attempt and Policy.MaxRetries retries have all failed.
var ErrMaxRetriesExceeded = errors.New("retry: max retries exceeded")

// Do runs fn, retrying on error per p until it succeeds, ctx is canceled,
// or MaxRetries is exhausted (when non-zero). IsRetryable, if non-nil,
// gates which errors are retried; a nil IsRetryable retries every error.
func Do(ctx context.Context, p Policy, isRetryable func(error) bool, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.NextDelay(attempt - 1)):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		if p.MaxRetries > 0 && attempt >= p.MaxRetries {
			return errors.Join(ErrMaxRetriesExceeded, lastErr)
		}
	}
}
