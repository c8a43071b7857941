package ledger

import (
	"sync/atomic"
	"time"
)

// Clock supplies the block timestamp in unix seconds
type Clock interface {
	Now() uint64
}

// SystemClock follows wall-clock time
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock only moves when told to. Used by tests and simulations.
type ManualClock struct {
	now atomic.Uint64
}

// NewManualClock creates a clock starting at ts
func NewManualClock(ts uint64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(ts)
	return c
}

func (c *ManualClock) Now() uint64 {
	return c.now.Load()
}

// Set warps the clock to ts
func (c *ManualClock) Set(ts uint64) {
	c.now.Store(ts)
}

// Advance moves the clock forward by seconds
func (c *ManualClock) Advance(seconds uint64) {
	c.now.Add(seconds)
}
