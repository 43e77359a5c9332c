// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package retry provides bounded retry with a pluggable delay schedule.
//
// The install step of the download engine renames a temp file into
// place and must tolerate transient filesystem contention; rather than
// inlining a retry loop there, the policy lives here so attempt counts
// and delay curves are declared once and tested in isolation.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/fontdepot/fontdepot/lib/clock"
)

// DelayFunc returns the delay before the given retry attempt. Attempt
// numbering starts at 1 for the first retry (the initial try has no
// delay).
type DelayFunc func(attempt int) time.Duration

// Exponential returns a DelayFunc that starts at base and doubles on
// every subsequent attempt: base, 2*base, 4*base, ...
func Exponential(base time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
		}
		return d
	}
}

// Fixed returns a DelayFunc with a constant delay between attempts.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Policy describes a bounded retry schedule.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	// Values below 1 are treated as 1.
	Attempts int

	// Delay computes the wait before each retry. Nil means no delay.
	Delay DelayFunc

	// Clock provides the waiting mechanism. Nil means clock.Real().
	Clock clock.Clock
}

// Do runs fn until it succeeds, the attempt budget is exhausted, or ctx
// is cancelled while waiting between attempts. The returned error is
// the last failure, or ctx.Err() wrapped when cancelled mid-wait.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}

	var lastErr error
	for try := 0; try < attempts; try++ {
		if try > 0 {
			var delay time.Duration
			if p.Delay != nil {
				delay = p.Delay(try)
			}
			if delay > 0 {
				select {
				case <-clk.After(delay):
				case <-ctx.Done():
					return fmt.Errorf("retry: cancelled after %d of %d attempts: %w", try, attempts, ctx.Err())
				}
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("retry: %d attempts exhausted: %w", attempts, lastErr)
}
