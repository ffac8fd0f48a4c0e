package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDelay_GrowsExponentiallyThenClamps(t *testing.T) {
	p := Policy{InitialInterval: time.Second, Multiplier: 2, MaxInterval: 10 * time.Second, JitterFraction: 0}

	assert.Equal(t, time.Second, p.NextDelay(0))
	assert.Equal(t, 2*time.Second, p.NextDelay(1))
	assert.Equal(t, 4*time.Second, p.NextDelay(2))
	assert.Equal(t, 8*time.Second, p.NextDelay(3))
	assert.Equal(t, 10*time.Second, p.NextDelay(4), "clamped to MaxInterval")
	assert.Equal(t, 10*time.Second, p.NextDelay(10), "stays clamped")
}

func TestNextDelay_NeverBelowInitialInterval(t *testing.T) {
	p := Policy{InitialInterval: 5 * time.Second, Multiplier: 2, MaxInterval: time.Minute, JitterFraction: 0}
	assert.Equal(t, 5*time.Second, p.NextDelay(-3))
}

func TestNextDelay_JitterStaysWithinBounds(t *testing.T) {
	p := Policy{InitialInterval: 10 * time.Second, Multiplier: 2, MaxInterval: time.Minute, JitterFraction: 0.2}
	for i := 0; i < 100; i++ {
		d := p.NextDelay(0)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{InitialInterval: time.Millisecond, Multiplier: 1}, nil, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{InitialInterval: time.Millisecond, Multiplier: 1}, nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	sentinel := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), Policy{InitialInterval: time.Millisecond, Multiplier: 1}, func(error) bool { return false }, func(ctx context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsAfterMaxRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{InitialInterval: time.Millisecond, Multiplier: 1, MaxRetries: 2}, nil, func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	})
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Policy{InitialInterval: time.Hour, Multiplier: 1}, nil, func(ctx context.Context) error {
		return errors.New("never succeeds")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
