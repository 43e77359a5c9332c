// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry owns the in-memory font asset list.
//
// All mutation happens under the write side of an explicit
// reader-writer lock; readers get a consistent snapshot fused with the
// backing store, with local paths mapped to file:// URIs and empty
// descriptor values stripped. The in-memory list holds only assets
// supplied by callers (literal registrations, walked directories,
// Google references, manifest metadata); downloaded assets live in the
// store alone and enter the read view through the fuse.
//
// Registrations are atomic with respect to each other and to Clear:
// either all assets of one call appear together or none do. Get first
// waits for every write enqueued before it, so a caller that registers
// and then reads observes its own registration.
package registry
