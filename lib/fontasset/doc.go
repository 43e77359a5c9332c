// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package fontasset defines the font asset model shared by the
// registry, manifest resolver, download engine, and backing store.
//
// An asset's identity is its ID: either the BLAKE3 content hash of the
// file or a caller-supplied identifier (Google family specs, manifest
// URLs). Two assets with the same ID are the same logical asset; later
// registrations replace earlier ones.
//
// The package also owns the format inference tables. A format is
// resolved first from a recognized filename extension, then from the
// HTTP Content-Type. No font data is ever parsed.
package fontasset
