package engine

import "sync/atomic"

// Clock is the burst counter.
//
// Every burst is stamped with a strictly increasing number from this
// clock. The excitability roll is keyed by it, so a replay that starts
// the clock at the same value reproduces the same decisions.
//
// Thread-safety: Clock is safe for concurrent use. Only the step holding
// the engine lock calls Next.
type Clock struct {
	burst atomic.Uint64
}

// NewClock creates a clock at 0. The first burst is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock at a specific burst, used to resume a run.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.burst.Store(start)
	return c
}

// Next advances the clock and returns the new burst.
func (c *Clock) Next() uint64 {
	return c.burst.Add(1)
}

// Current returns the latest burst without advancing.
func (c *Clock) Current() uint64 {
	return c.burst.Load()
}
