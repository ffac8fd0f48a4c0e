// Package snowflake generates time-ordered 64-bit ids without
// coordination. Layout: 1 unused sign bit, 41-bit milliseconds-since-epoch,
// 10-bit worker id, 12-bit sequence.
package snowflake

import (
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = 1<<workerIDBits - 1 // 1023
	maxSequence    = 1<<sequenceBits - 1 // 4095
	timestampShift = workerIDBits + sequenceBits
	workerIDShift  = sequenceBits
)

// ErrClockBackwards is returned, without waiting, when the clock has moved
// back by more than backwardsTolerance.
var ErrClockBackwards = errors.New("snowflake: clock moved backwards")

// ErrInvalidWorkerID is returned at construction for a worker id outside
// [0, 1023].
var ErrInvalidWorkerID = fmt.Errorf("snowflake: worker id must be in [0,%d]", maxWorkerID)

// Clock abstracts the time source so tests can control skew and regression
// deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the monotonic-UTC wall clock used in production.
var SystemClock Clock = systemClock{}

// backwardsTolerance is the window the generator waits out a clock
// regression before failing fast.
const backwardsTolerance = 100 * time.Millisecond

// Generator produces Snowflake ids for one worker. The zero value is not
// usable — construct with New.
type Generator struct {
	epoch    time.Time
	workerID int64
	clock    Clock

	mu            sync.Mutex
	lastTimestamp int64 // ms since epoch
	sequence      int64
}

// Option configures a Generator at construction.
type Option func(*Generator)

// WithClock overrides the default system clock (for tests).
func WithClock(c Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// New constructs a Generator for workerID against a fixed epoch. workerID
// must be in [0, 1023] — callers deriving it from a MAC address should use
// WorkerIDFromMAC, which trades a small collision risk for working without
// any static per-process config.
func New(epoch time.Time, workerID int, opts ...Option) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	g := &Generator{
		epoch:         epoch.UTC(),
		workerID:      int64(workerID),
		clock:         SystemClock,
		lastTimestamp: -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// WorkerIDFromMAC derives a worker id in [0,1023] from the first non-
// loopback interface's MAC address. Two processes on interfaces that hash
// to the same value will collide, so callers should prefer an explicitly
// configured id over this.
func WorkerIDFromMAC() (int, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0, err
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		sum := sha1.Sum(iface.HardwareAddr)
		id := int(binary.BigEndian.Uint16(sum[:2])) & maxWorkerID
		return id, nil
	}
	return 0, errors.New("snowflake: no interface with a hardware address found")
}

// Next produces one id. It blocks briefly in two cases: up to 100ms
// waiting out a small clock regression, and up to the remainder of the
// current millisecond when the 4096/ms sequence space is exhausted.
func (g *Generator) Next() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowMillis()

	if now < g.lastTimestamp {
		delta := g.lastTimestamp - now
		if time.Duration(delta)*time.Millisecond > backwardsTolerance {
			return 0, ErrClockBackwards
		}
		// Wait out the small regression rather than fail.
		for now < g.lastTimestamp {
			time.Sleep(time.Millisecond)
			now = g.nowMillis()
		}
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence overflowed within this millisecond: busy-wait for
			// the next tick.
			for now <= g.lastTimestamp {
				now = g.nowMillis()
			}
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = now
	id := (uint64(now) << timestampShift) | (uint64(g.workerID) << workerIDShift) | uint64(g.sequence)
	return id, nil
}

func (g *Generator) nowMillis() int64 {
	return g.clock.Now().Sub(g.epoch).Milliseconds()
}

// Decompose splits an id back into its timestamp (relative to epoch),
// worker id, and sequence components. Useful for tests and observability.
func Decompose(id uint64) (timestampMS int64, workerID int, sequence int) {
	timestampMS = int64(id >> timestampShift)
	workerID = int((id >> workerIDShift) & maxWorkerID)
	sequence = int(id & maxSequence)
	return
}
