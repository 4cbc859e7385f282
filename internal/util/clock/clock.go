package clock

import (
	"sync"
	"time"
)

// Clock is the subset of the time package used by pollers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after d elapses.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SteppingClock is a fake Clock. Every After call advances virtual time by
// the requested duration and fires at once.
//
// SteppingClock is safe for concurrent use. Elapsed time is shared by all
// callers, so per-poller assertions should use one clock per poller.
type SteppingClock struct {
	mu      sync.Mutex
	current time.Time
	waits   int
}

// Stepping returns a SteppingClock starting at the given time.
func Stepping(start time.Time) *SteppingClock {
	return &SteppingClock{current: start}
}

// Now returns the current virtual time.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After advances virtual time by d and returns an already-fired channel.
func (c *SteppingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d > 0 {
		c.current = c.current.Add(d)
	}
	c.waits++

	ch := make(chan time.Time, 1)
	ch <- c.current
	return ch
}

// Waits reports how many times After has been called.
func (c *SteppingClock) Waits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waits
}
