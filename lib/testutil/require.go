// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import "time"

// TB is the subset of testing.TB the helpers need. Declared locally so
// the package has no import of testing, keeping it usable from
// benchmarks and fuzz targets alike.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout or fails the
// test.
//
//	err := testutil.RequireReceive(t, errCh, 5*time.Second, "engine result")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, what string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without a value: %s", what)
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, what)
	}
	panic("unreachable")
}

// RequireClosed waits for ch to close (or deliver a value) within
// timeout or fails the test. Use for done channels that signal by
// closing.
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for close: %s", timeout, what)
	}
}

// Eventually polls condition every interval until it returns true or
// timeout elapses, failing the test on timeout. Use for state that is
// updated by a background goroutine and observed by polling, like
// download progress acknowledgments.
func Eventually(t TB, timeout, interval time.Duration, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v: %s", timeout, what)
		}
		time.Sleep(interval)
	}
}
