// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fontdepot/fontdepot/lib/clock"
)

func TestExponentialSchedule(t *testing.T) {
	delay := Exponential(100 * time.Millisecond)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for i, expected := range want {
		if got := delay(i + 1); got != expected {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, got, expected)
		}
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Policy{Attempts: 3}.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Policy{
			Attempts: 3,
			Delay:    Exponential(100 * time.Millisecond),
			Clock:    fake,
		}.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
	}()

	// First retry waits 100ms, second waits 200ms.
	waitForWaiter(t, fake)
	fake.Advance(100 * time.Millisecond)
	waitForWaiter(t, fake)
	fake.Advance(200 * time.Millisecond)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Do returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not complete")
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("still broken")

	calls := 0
	err := Policy{Attempts: 3}.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Do error = %v, want wrapped %v", err, sentinel)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestDoCancelledWhileWaiting(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Policy{
			Attempts: 5,
			Delay:    Fixed(time.Minute),
			Clock:    fake,
		}.Do(ctx, func() error { return errors.New("always") })
	}()

	waitForWaiter(t, fake)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Do error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

// waitForWaiter blocks until the retry loop has parked on the fake
// clock, so an Advance cannot race ahead of the registration.
func waitForWaiter(t *testing.T, fake *clock.FakeClock) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for fake.PendingWaiters() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for clock waiter")
		}
		time.Sleep(time.Millisecond)
	}
}
