// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides FontDepot's standard CBOR encoding
// configuration.
//
// FontDepot uses two serialization formats with a clear boundary: JSON
// for external documents (font manifests, CLI output) and CBOR for
// internal data (the console socket protocol and the descriptor blob
// column in the backing store). This package holds the shared encoding
// and decoding modes so every package encodes identically.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical data always produces identical bytes, which keeps the
// descriptor blob stable across upserts of an unchanged asset.
package codec
