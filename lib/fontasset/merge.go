// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package fontasset

// Merge combines two asset collections by identity. Entries of
// incoming whose ID already appears in existing replace that entry in
// place (position preserved); new IDs are appended in incoming order.
// Within incoming, a later duplicate ID wins.
//
// Merge is pure: neither input slice is modified.
func Merge(existing, incoming []Asset) []Asset {
	merged := make([]Asset, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, asset := range merged {
		index[asset.ID] = i
	}

	for _, asset := range incoming {
		if i, ok := index[asset.ID]; ok {
			merged[i] = asset
			continue
		}
		index[asset.ID] = len(merged)
		merged = append(merged, asset)
	}
	return merged
}
