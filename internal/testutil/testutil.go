// Package testutil provides deterministic stand-ins for the clock, ID
// generator, and RNG used across the engine's tests.
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current frozen time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// SequenceIDs returns a generator producing "<prefix>-1", "<prefix>-2",
// and so on.
func SequenceIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// Rand replays a fixed sequence of draws, repeating the last value once
// the script runs out.
type Rand struct {
	mu     sync.Mutex
	script []float64
	pos    int
}

// ScriptedRand builds a Rand from the given draws. With no draws it
// always returns 0.
func ScriptedRand(draws ...float64) *Rand {
	return &Rand{script: draws}
}

// Float64 returns the next scripted draw.
func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.script) == 0 {
		return 0
	}
	v := r.script[r.pos]
	if r.pos < len(r.script)-1 {
		r.pos++
	}
	return v
}
