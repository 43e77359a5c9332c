// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package fontasset

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// ContentHash streams r through BLAKE3 and returns the hex digest and
// the number of bytes read. This is the asset ID for any asset whose
// identity is its content.
func ContentHash(r io.Reader) (string, uint64, error) {
	hasher := blake3.New()
	size, err := io.Copy(hasher, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), uint64(size), nil
}

// ContentHashFile hashes the file at path. Returns the hex digest and
// the file's byte length.
func ContentHashFile(path string) (string, uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()
	return ContentHash(file)
}
