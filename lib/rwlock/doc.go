// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package rwlock provides a context-aware reader/writer lock with
// configurable writer preference.
//
// The registry uses it to sequence logical operations (register vs get
// vs clear) rather than to guard memory: any number of readers may
// proceed together, a writer requires exclusive access, and
// [Lock.WaitForWritesToComplete] gives readers a barrier that all
// writes enqueued before the call have finished.
//
// With writer preference enabled (the registry default), a new reader
// is deferred while any writer is queued, so a steady stream of readers
// cannot starve writers. With preference off, readers are admitted
// whenever no writer holds the lock.
//
// The lock never fails on its own; acquisition only returns an error
// when the caller's context is cancelled while waiting.
package rwlock
