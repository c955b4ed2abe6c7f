package testutil

import (
	"sync"
	"time"
)

// DefaultEpochMs is the first timestamp handed out by a DeterministicClock.
// 2024-01-01T00:00:00Z.
const DefaultEpochMs int64 = 1704067200000

// DeterministicClock provides a thread-safe wall clock for tests that
// advances by exactly one millisecond per reading.
//
// Record logs stamp every append with the clock's reading, so a log written
// with a DeterministicClock is byte-identical across runs.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch int64
	ticks int64
}

// NewDeterministicClock creates a clock whose first reading is DefaultEpochMs.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpochMs)
}

// NewDeterministicClockAt creates a clock whose first reading is epochMs.
func NewDeterministicClockAt(epochMs int64) *DeterministicClock {
	return &DeterministicClock{epoch: epochMs}
}

// Now returns the next reading and advances the clock by one millisecond.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.epoch + c.ticks
	c.ticks++
	return time.UnixMilli(ms)
}

// Peek returns the reading the next call to Now will produce.
func (c *DeterministicClock) Peek() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch + c.ticks
}

// Reset rewinds the clock to its epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
