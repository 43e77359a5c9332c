// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package fontstore is the persistent backing store for font assets.
//
// The store is a single SQLite table keyed by asset ID, reached through
// a narrow upsert/query/remove interface. It is the source of truth
// across restarts: the in-memory registry only ever holds caller-
// supplied entries, while downloaded assets are upserted here directly.
//
// Common CSS descriptors (style, weight, stretch, unicode-range,
// display, variant, feature-settings) are flattened into columns so
// operators can query them with plain SQL; any remaining descriptor
// keys round-trip through a deterministic CBOR blob.
//
// Connections come from a fixed-size sqlitex pool with WAL journaling,
// NORMAL synchronous, and a busy timeout, so concurrent readers never
// block the single writer. Use ":memory:" with PoolSize 1 in tests.
package fontstore
