package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a deterministic Clock. Time only moves when Advance is called,
// and due callbacks run synchronously in the calling goroutine, in
// deadline order.
//
// Callbacks may schedule new timers; those fire within the same Advance
// call if their deadline is already due. Calling Advance from inside a
// callback deadlocks.
type Fake struct {
	mu      sync.Mutex
	advance sync.Mutex
	now     time.Time
	seq     int
	waiters []*fakeTimer
}

// NewFake returns a Fake clock starting at initial.
func NewFake(initial time.Time) *Fake {
	return &Fake{now: initial}
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	seq      int
	fn       func()
	done     bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), seq: c.seq, fn: f}
	c.waiters = append(c.waiters, t)
	return t
}

// Advance moves the clock forward by d, firing every timer whose deadline
// falls inside the window.
func (c *Fake) Advance(d time.Duration) {
	c.advance.Lock()
	defer c.advance.Unlock()

	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		next := c.popDue(target)
		if next == nil {
			break
		}
		next.fn()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// popDue removes and returns the earliest pending timer due at or before
// target, moving the clock to its deadline. It returns nil when nothing is due.
func (c *Fake) popDue(target time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.waiters[:0]
	for _, t := range c.waiters {
		if !t.done {
			live = append(live, t)
		}
	}
	c.waiters = live
	sort.SliceStable(c.waiters, func(i, j int) bool {
		if c.waiters[i].deadline.Equal(c.waiters[j].deadline) {
			return c.waiters[i].seq < c.waiters[j].seq
		}
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
	if len(c.waiters) == 0 || c.waiters[0].deadline.After(target) {
		return nil
	}
	t := c.waiters[0]
	t.done = true
	c.waiters = c.waiters[1:]
	if t.deadline.After(c.now) {
		c.now = t.deadline
	}
	return t
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.waiters {
		if !t.done {
			n++
		}
	}
	return n
}
