// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses and resolves declarative font manifests.
//
// A manifest is a JSON document (comments and trailing commas
// tolerated) naming font families and, per family, a list of tagged
// sources: "google" (CSS endpoint URLs), "local" (filesystem assets),
// or "remote" (downloadable URLs). Validation fails closed: a document
// missing its version or fonts map, or carrying an unrecognized source
// type or a payload that does not match the type's shape, is rejected
// whole. Invalid manifests are logged and skipped; the rest of the
// batch proceeds.
//
// Relative asset paths are resolved against the manifest's own
// location: its URL directory for manifests fetched over HTTP, its
// file directory for manifests read from disk. After resolution every
// asset path is absolute (filesystem or URL).
//
// The Resolver dispatches each source either into the registry
// ("register metadata") or through the download engine
// ("materialize"); the mode threads through nested manifests.
package manifest
