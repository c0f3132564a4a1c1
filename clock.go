package cohook

import "time"

// tickClock is the scheduler's monotonic millisecond clock. refresh
// samples it once per pass; Now returns that sample until the next
// refresh so every consumer in a pass sees the same time.
type tickClock struct {
	base time.Time
	last int64
}

func newTickClock() *tickClock {
	return &tickClock{base: time.Now()}
}

func (c *tickClock) Now() int64 {
	return c.last
}

func (c *tickClock) refresh() int64 {
	c.last = c.peek()
	return c.last
}

// peek reads the system clock without moving the snapshot.
func (c *tickClock) peek() int64 {
	return time.Since(c.base).Milliseconds()
}
