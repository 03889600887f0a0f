package testutil

import "sync"

// DeterministicClock stands in for trace.Clock in tests. Each Now advances
// it by a fixed step, so recorded timestamps are reproducible.
type DeterministicClock struct {
	mu   sync.Mutex
	seq  int64
	step int64
}

// NewDeterministicClock returns a clock at 0 with step 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{step: 1}
}

// WithStep sets the increment applied by Next and Now.
func (c *DeterministicClock) WithStep(step int64) *DeterministicClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
	return c
}

// Next steps the clock forward.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq += c.step
	return c.seq
}

// Now is Next under the name trace.Clock expects.
func (c *DeterministicClock) Now() int64 {
	return c.Next()
}

// Current reads the clock without stepping it.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds to 0; the step is kept.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
