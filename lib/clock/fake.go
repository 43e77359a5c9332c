// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called; pending After, Sleep, and Ticker
// waiters fire when the clock advances past their deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for tests. Waiters fire in
// deadline order during Advance, so interleavings are reproducible.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time

	// interval is non-zero for ticker waiters; after firing, the
	// waiter is rescheduled at deadline + interval.
	interval time.Duration

	stopped bool
	fired   bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock has been
// advanced past the deadline. If d <= 0 the channel receives
// immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.waiters = append(c.waiters, &waiter{deadline: c.current.Add(d), ch: ch})
	return ch
}

// NewTicker returns a Ticker that fires once per interval crossed by
// Advance. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &waiter{deadline: c.current.Add(d), ch: ch, interval: d}
	c.waiters = append(c.waiters, w)

	return &Ticker{
		C: ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.stopped = true
		},
	}
}

// Sleep blocks the calling goroutine until the clock advances past the
// deadline. Returns immediately if d <= 0.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time, in deadline order. Channel sends
// are non-blocking: a tick that finds the buffer full is dropped,
// matching time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.current.Add(d)

	for {
		next := c.nextDueLocked(target)
		if next == nil {
			break
		}

		c.current = next.deadline
		select {
		case next.ch <- c.current:
		default:
		}

		if next.interval > 0 {
			next.deadline = next.deadline.Add(next.interval)
		} else {
			next.fired = true
		}
	}

	c.current = target
	c.compactLocked()
}

// PendingWaiters returns the number of live waiters. Tests use this to
// confirm a polling loop has parked before advancing the clock.
func (c *FakeClock) PendingWaiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			count++
		}
	}
	return count
}

// nextDueLocked returns the live waiter with the earliest deadline at
// or before target, or nil when none are due.
func (c *FakeClock) nextDueLocked(target time.Time) *waiter {
	var due []*waiter
	for _, w := range c.waiters {
		if !w.stopped && !w.fired && !w.deadline.After(target) {
			due = append(due, w)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	return due[0]
}

// compactLocked drops fired and stopped waiters.
func (c *FakeClock) compactLocked() {
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			live = append(live, w)
		}
	}
	c.waiters = live
}
