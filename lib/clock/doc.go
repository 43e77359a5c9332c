// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, time.NewTicker, or time.Sleep directly. Real() provides
// standard library behavior; Fake() provides a deterministic clock that
// advances only when Advance is called, so tests of polling loops,
// batch retirement delays, and retry backoff run instantly and without
// flakes.
package clock
