// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package rwlock

import (
	"context"
	"sync"
)

// Options configures a Lock.
type Options struct {
	// WriterPreference defers new readers while any writer is queued.
	// Without it, readers are admitted whenever no writer is active,
	// which favors read throughput at the risk of writer starvation.
	WriterPreference bool
}

// Lock is a reader/writer lock whose acquisitions respect context
// cancellation. The zero value is not usable; construct with New.
//
// Waking on release is class-based to avoid thundering herds: the
// releasing party wakes either the writer at the head of the queue, or
// every waiting reader at once — never both.
type Lock struct {
	mu sync.Mutex

	writerPreference bool

	activeReaders int
	writerActive  bool

	// waitingWriters is a FIFO queue. Each entry is closed to grant
	// the write lock to exactly that waiter.
	waitingWriters []chan struct{}

	// readerGate, when non-nil, is the channel all waiting readers
	// block on. Closing it releases the whole class together; each
	// reader then re-checks admission under mu.
	readerGate chan struct{}
}

// New returns a Lock with the given options.
func New(opts Options) *Lock {
	return &Lock{writerPreference: opts.WriterPreference}
}

// AcquireRead blocks until read access is granted or ctx is cancelled.
// On success it returns a release function that must be called exactly
// once (a second call is a no-op).
func (l *Lock) AcquireRead(ctx context.Context) (func(), error) {
	l.mu.Lock()
	for {
		if l.readerAdmissibleLocked() {
			l.activeReaders++
			l.mu.Unlock()
			return l.readReleaser(), nil
		}

		if l.readerGate == nil {
			l.readerGate = make(chan struct{})
		}
		gate := l.readerGate
		l.mu.Unlock()

		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		l.mu.Lock()
	}
}

// AcquireWrite blocks until exclusive access is granted or ctx is
// cancelled. On success it returns a release function that must be
// called exactly once (a second call is a no-op).
func (l *Lock) AcquireWrite(ctx context.Context) (func(), error) {
	l.mu.Lock()

	// Fast path: nothing active, nothing queued ahead of us.
	if !l.writerActive && l.activeReaders == 0 && len(l.waitingWriters) == 0 {
		l.writerActive = true
		l.mu.Unlock()
		return l.writeReleaser(), nil
	}

	grant := make(chan struct{})
	l.waitingWriters = append(l.waitingWriters, grant)
	l.mu.Unlock()

	select {
	case <-grant:
		// writerActive was set on our behalf by the releasing party.
		return l.writeReleaser(), nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waitingWriters {
			if w == grant {
				l.waitingWriters = append(l.waitingWriters[:i], l.waitingWriters[i+1:]...)
				// Our departure may unblock deferred readers.
				l.wakeLocked()
				l.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		// Not in the queue: the grant raced our cancellation and the
		// lock is ours. Give it back before reporting cancellation.
		l.mu.Unlock()
		l.writeReleaser()()
		return nil, ctx.Err()
	}
}

// WithRead runs fn while holding the read lock.
func (l *Lock) WithRead(ctx context.Context, fn func() error) error {
	release, err := l.AcquireRead(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// WithWrite runs fn while holding the write lock.
func (l *Lock) WithWrite(ctx context.Context, fn func() error) error {
	release, err := l.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// WaitForWritesToComplete returns once every write enqueued before the
// call has finished. It is a no-op write acquisition: the barrier
// itself mutates nothing.
func (l *Lock) WaitForWritesToComplete(ctx context.Context) error {
	release, err := l.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	release()
	return nil
}

// readerAdmissibleLocked reports whether a new reader may proceed.
func (l *Lock) readerAdmissibleLocked() bool {
	if l.writerActive {
		return false
	}
	if l.writerPreference && len(l.waitingWriters) > 0 {
		return false
	}
	return true
}

// readReleaser returns the release function for one read acquisition.
func (l *Lock) readReleaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.activeReaders--
			if l.activeReaders == 0 {
				l.wakeLocked()
			}
			l.mu.Unlock()
		})
	}
}

// writeReleaser returns the release function for one write acquisition.
func (l *Lock) writeReleaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.writerActive = false
			l.wakeLocked()
			l.mu.Unlock()
		})
	}
}

// wakeLocked grants the lock to the next class of waiters: the writer
// at the head of the queue if any, else all waiting readers together.
// Must be called with no active writer; does nothing while readers
// remain active (the last reader out performs the wake).
func (l *Lock) wakeLocked() {
	if l.writerActive || l.activeReaders > 0 {
		return
	}

	if len(l.waitingWriters) > 0 {
		grant := l.waitingWriters[0]
		l.waitingWriters = l.waitingWriters[1:]
		l.writerActive = true
		close(grant)
		return
	}

	if l.readerGate != nil {
		close(l.readerGate)
		l.readerGate = nil
	}
}
