// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"sync"
)

// FileStatus is a point-in-time snapshot of one transfer, safe to hand
// to pollers. The console server serializes these over the admin
// channel.
type FileStatus struct {
	URL             string `cbor:"url"              json:"url"`
	Downloaded      uint64 `cbor:"downloaded"       json:"downloaded"`
	ContentLength   uint64 `cbor:"content_length"   json:"contentLength"`
	Finished        bool   `cbor:"finished"         json:"finished"`
	Failed          bool   `cbor:"failed"           json:"failed"`
	CancelRequested bool   `cbor:"cancel_requested" json:"cancelRequested"`
	Cancelled       bool   `cbor:"cancelled"        json:"cancelled"`
}

// Terminal reports whether the transfer has reached a final state.
func (s FileStatus) Terminal() bool {
	return s.Finished || s.Failed || s.Cancelled
}

// fileDownload is the engine's mutable record of one transfer. All
// field access goes through mu; the transfer goroutine writes progress
// while pollers and cancellers read concurrently.
type fileDownload struct {
	url         string
	descriptors map[string]string

	// seq is the file's position in its batch. It keeps temp file
	// names unique when two URLs share a basename.
	seq int

	mu              sync.Mutex
	downloaded      uint64
	contentLength   uint64
	finished        bool
	failed          bool
	cancelRequested bool
	cancelled       bool

	// cancelTransfer aborts the in-flight HTTP transfer. Set when the
	// transfer starts; nil before that (a pre-start cancellation is
	// caught by the flag check at the top of the transfer).
	cancelTransfer context.CancelFunc
}

func (f *fileDownload) status() FileStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FileStatus{
		URL:             f.url,
		Downloaded:      f.downloaded,
		ContentLength:   f.contentLength,
		Finished:        f.finished,
		Failed:          f.failed,
		CancelRequested: f.cancelRequested,
		Cancelled:       f.cancelled,
	}
}

// requestCancel flags the transfer for cancellation and aborts its
// transport context when one is active. The acknowledgment (cancelled)
// is left to the transfer's teardown.
func (f *fileDownload) requestCancel() {
	f.mu.Lock()
	if f.finished || f.failed || f.cancelled {
		f.mu.Unlock()
		return
	}
	f.cancelRequested = true
	cancel := f.cancelTransfer
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (f *fileDownload) cancelWanted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelRequested
}

func (f *fileDownload) beginTransfer(cancel context.CancelFunc) {
	f.mu.Lock()
	f.cancelTransfer = cancel
	f.mu.Unlock()
}

func (f *fileDownload) setContentLength(n uint64) {
	f.mu.Lock()
	f.contentLength = n
	f.mu.Unlock()
}

func (f *fileDownload) addProgress(n int) {
	f.mu.Lock()
	f.downloaded += uint64(n)
	f.mu.Unlock()
}

func (f *fileDownload) markFinished() {
	f.mu.Lock()
	f.finished = true
	f.mu.Unlock()
}

func (f *fileDownload) markFailed() {
	f.mu.Lock()
	f.failed = true
	f.mu.Unlock()
}

func (f *fileDownload) markCancelled() {
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
}

// batch is one named download group in the engine's active set.
type batch struct {
	name  string
	files []*fileDownload
}

// statuses snapshots every file in the batch.
func (b *batch) statuses() []FileStatus {
	out := make([]FileStatus, len(b.files))
	for i, f := range b.files {
		out[i] = f.status()
	}
	return out
}

// allCancelled reports whether every file acknowledged cancellation.
func (b *batch) allCancelled() bool {
	for _, f := range b.files {
		if !f.status().Cancelled {
			return false
		}
	}
	return len(b.files) > 0
}
