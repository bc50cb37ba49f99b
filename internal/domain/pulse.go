package domain

import "sync/atomic"

// PulseCounter accumulates tips/revolutions from an event-driven input
// binding. The binding calls Add from its interrupt callback; the acquisition
// side drains or discards once per cycle. Safe for concurrent use.
type PulseCounter struct {
	n atomic.Uint64
}

// Add records n pulses.
func (c *PulseCounter) Add(n uint64) { c.n.Add(n) }

// Load returns the current count without resetting it.
func (c *PulseCounter) Load() uint64 { return c.n.Load() }

// Drain returns the current count and zeroes it in one step.
func (c *PulseCounter) Drain() uint64 { return c.n.Swap(0) }

// Discard subtracts exactly n pulses. Pulses that arrive between a Load and
// the matching Discard survive into the next cycle instead of being lost.
func (c *PulseCounter) Discard(n uint64) { c.n.Add(^(n - 1)) }
