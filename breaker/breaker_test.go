package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(time.Minute)
	assert.Equal(t, Closed, b.CurrentState())
	assert.True(t, b.Allow())
}

func TestBreaker_OpensAfterFiveConsecutiveFailures(t *testing.T) {
	b := New(time.Minute)
	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, Closed, b.CurrentState())
	}
	b.RecordFailure()
	assert.Equal(t, Open, b.CurrentState())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(time.Minute)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, Closed, b.CurrentState())
	}
}

func TestBreaker_TransitionsToHalfOpenAfterOpenDuration(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := New(time.Minute, WithClock(clock))
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Equal(t, Open, b.CurrentState())
	assert.False(t, b.Allow())

	clock.Advance(time.Minute)
	assert.True(t, b.Allow(), "probe should be admitted once the open duration elapses")
	assert.Equal(t, HalfOpen, b.CurrentState())

	assert.False(t, b.Allow(), "only one probe is admitted at a time in HALF_OPEN")
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := New(time.Minute, WithClock(clock))
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.Advance(time.Minute)
	require.True(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, Closed, b.CurrentState())
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := New(time.Minute, WithClock(clock))
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.Advance(time.Minute)
	require.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, Open, b.CurrentState())
	assert.False(t, b.Allow())

	clock.Advance(time.Minute)
	assert.True(t, b.Allow())
}
