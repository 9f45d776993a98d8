package queue

import "sync/atomic"

// Clock is a monotonic logical clock for operation sequencing.
//
// Every enqueued operation is stamped with a strictly increasing seq
// number, so FIFO order within a priority never depends on wall-clock
// resolution or equal timestamps.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock starting after a specific sequence number.
// Seeded from the store's max assigned seq so restarts keep ordering.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
