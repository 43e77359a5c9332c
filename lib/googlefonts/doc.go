// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package googlefonts parses Google Fonts CSS endpoint URLs into font
// assets.
//
// No bytes are fetched: a parsed asset is a reference (Format google,
// Size 0) whose Path is a reconstructed canonical URL carrying exactly
// one family plus the original display parameter. The raw family value,
// variant suffix included, becomes the asset ID so that "Roboto:wght@400"
// and "Roboto:wght@700" are distinct catalog entries.
package googlefonts
