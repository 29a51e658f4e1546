package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a BlockClock: 2024-01-01T00:00:00Z.
var Epoch = time.Unix(1704067200, 0).UTC()

// BlockClock is a deterministic clock for block timestamps.
//
// Each call to Now returns the next tick: start, start+step, start+2*step, ...
// so the same sequence of submissions always yields the same block hashes.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type BlockClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	ticks int64
}

// NewBlockClock creates a clock starting at Epoch with a 12-second step.
func NewBlockClock() *BlockClock {
	return NewBlockClockAt(Epoch, 12*time.Second)
}

// NewBlockClockAt creates a clock with an explicit start and step.
func NewBlockClockAt(start time.Time, step time.Duration) *BlockClock {
	return &BlockClock{start: start, step: step}
}

// Now returns the next tick and advances the clock.
func (c *BlockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Ticks returns how many times Now has been called.
func (c *BlockClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock so the next Now returns start again.
func (c *BlockClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
