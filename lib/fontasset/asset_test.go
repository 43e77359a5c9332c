// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package fontasset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path   string
		format Format
		ok     bool
	}{
		{"/fonts/roboto.woff2", FormatWOFF2, true},
		{"/fonts/Roboto.WOFF2", FormatWOFF2, true},
		{"relative/open-sans.woff", FormatWOFF, true},
		{"/fonts/noto.ttf", FormatTTF, true},
		{"/fonts/source.otf", FormatOTF, true},
		{"/fonts/legacy.sfnt", FormatSFNT, true},
		{"/fonts/collection.ttc", FormatTTC, true},
		{"/fonts/readme.txt", "", false},
		{"/fonts/noextension", "", false},
	}
	for _, tt := range tests {
		format, ok := FormatFromPath(tt.path)
		if ok != tt.ok || format != tt.format {
			t.Errorf("FormatFromPath(%q) = %q, %v; want %q, %v", tt.path, format, ok, tt.format, tt.ok)
		}
	}
}

func TestFormatFromContentType(t *testing.T) {
	tests := []struct {
		contentType string
		format      Format
		ok          bool
	}{
		{"font/woff2", FormatWOFF2, true},
		{"font/woff2; charset=utf-8", FormatWOFF2, true},
		{"FONT/TTF", FormatTTF, true},
		{"application/font-woff", FormatWOFF, true},
		{"application/x-font-opentype", FormatOTF, true},
		{"font/collection", FormatTTC, true},
		{"text/html", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		format, ok := FormatFromContentType(tt.contentType)
		if ok != tt.ok || format != tt.format {
			t.Errorf("FormatFromContentType(%q) = %q, %v; want %q, %v", tt.contentType, format, ok, tt.format, tt.ok)
		}
	}
}

func TestPathToURI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/fonts/roboto.woff2", "file:///fonts/roboto.woff2"},
		{"/fonts/open sans.ttf", "file:///fonts/open%20sans.ttf"},
		{"https://cdn.example.com/a.woff2", "https://cdn.example.com/a.woff2"},
		{"https://fonts.googleapis.com/css2?family=Roboto", "https://fonts.googleapis.com/css2?family=Roboto"},
	}
	for _, tt := range tests {
		if got := PathToURI(tt.in); got != tt.want {
			t.Errorf("PathToURI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanDescriptors(t *testing.T) {
	in := map[string]string{
		"style":  "italic",
		"weight": "",
	}
	cleaned := CleanDescriptors(in)
	if len(cleaned) != 1 || cleaned["style"] != "italic" {
		t.Fatalf("CleanDescriptors = %v", cleaned)
	}
	if _, still := in["weight"]; !still {
		t.Fatal("CleanDescriptors modified its input")
	}

	if got := CleanDescriptors(map[string]string{"weight": ""}); got != nil {
		t.Fatalf("all-empty descriptors = %v, want nil", got)
	}
	if got := CleanDescriptors(nil); got != nil {
		t.Fatalf("nil descriptors = %v, want nil", got)
	}
}

func TestContentHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.woff2")
	payload := []byte("not really a font, but bytes are bytes")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	hash, size, err := ContentHashFile(path)
	if err != nil {
		t.Fatalf("ContentHashFile: %v", err)
	}
	if size != uint64(len(payload)) {
		t.Fatalf("size = %d, want %d", size, len(payload))
	}
	if len(hash) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(hash))
	}

	// Same content hashes identically regardless of file name.
	other := filepath.Join(dir, "b.woff2")
	if err := os.WriteFile(other, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	otherHash, _, err := ContentHashFile(other)
	if err != nil {
		t.Fatalf("ContentHashFile: %v", err)
	}
	if otherHash != hash {
		t.Fatalf("identical content produced different hashes: %s vs %s", hash, otherHash)
	}
}

func TestMergeReplacesInPlace(t *testing.T) {
	existing := []Asset{
		{ID: "a", Family: "Alpha", Size: 1},
		{ID: "b", Family: "Beta", Size: 2},
	}
	incoming := []Asset{
		{ID: "b", Family: "Beta", Size: 20},
		{ID: "c", Family: "Gamma", Size: 3},
	}

	merged := Merge(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("len(merged) = %d, want 3", len(merged))
	}
	if merged[1].ID != "b" || merged[1].Size != 20 {
		t.Fatalf("duplicate not replaced in place: %+v", merged[1])
	}
	if merged[2].ID != "c" {
		t.Fatalf("new asset not appended: %+v", merged[2])
	}

	// Inputs untouched.
	if existing[1].Size != 2 {
		t.Fatal("Merge modified the existing slice")
	}
}

func TestMergeLaterDuplicateWins(t *testing.T) {
	merged := Merge(nil, []Asset{
		{ID: "x", Size: 1},
		{ID: "x", Size: 2},
	})
	if len(merged) != 1 || merged[0].Size != 2 {
		t.Fatalf("merged = %+v, want single entry with Size 2", merged)
	}
}
