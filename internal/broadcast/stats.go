package broadcast

import "sync"

// Cell holds the outcome of the most recently completed run. Writes are
// already sequential by construction (at most one run is Confirmed at a time,
// and delivery is single-goroutine), but the mutex keeps the cell correct if
// the host ever drives reads from other goroutines, e.g. the console loop.
type Cell struct {
	mu   sync.Mutex
	last Stats
	set  bool
}

// Set overwrites the cell with a completed run's outcome.
func (c *Cell) Set(st Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = st
	c.set = true
}

// Last returns the most recent outcome; ok is false before any run completes.
func (c *Cell) Last() (st Stats, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.set
}
