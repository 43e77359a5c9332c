// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations FontDepot uses. Components that
// sleep, poll, or back off hold a Clock field instead of calling the
// time package directly, so tests can drive them deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C at the given
	// interval. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. Call Stop to release it. The
// channel has capacity 1; ticks are dropped when the consumer falls
// behind, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. Stop does not close C.
func (t *Ticker) Stop() { t.stop() }
