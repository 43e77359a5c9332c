// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package download is the streaming download engine.
//
// A batch is a named group of URLs fetched together. Each file moves
// through pending → transferring → finished | failed | cancelled. The
// response body is streamed in chunks that feed a BLAKE3 hasher and a
// temp file simultaneously; the content hash becomes the asset ID and
// the temp file is renamed into the install directory atomically, with
// bounded retry to ride out transient filesystem contention. An
// existing file of the same name is deleted first, along with its
// backing-store row, so the last writer wins without orphaned rows.
//
// Cancellation is cooperative and per-file: Cancel sets a flag
// and cancels the transfer's context; the transfer observes it at the
// next chunk boundary, runs the idempotent teardown, and acknowledges
// by marking the file cancelled. Callers poll Status for the
// acknowledgment rather than assuming it is synchronous.
//
// Google Fonts CSS URLs and manifest URLs inside a batch are not
// streamed: they are resolved inline and marked finished immediately.
//
// Batch failures settle independently — partial success is normal.
// Every successfully produced asset is upserted into the backing store
// tagged with the batch's family once the batch settles.
package download
