// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package fontasset

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Format identifies how an asset is stored or referenced. File formats
// (woff..ttc) name the container on disk; FormatGoogle marks a Google
// Fonts CSS reference; FormatManifest marks a registered manifest
// document that is re-resolved on startup.
type Format string

const (
	FormatWOFF     Format = "woff"
	FormatWOFF2    Format = "woff2"
	FormatTTF      Format = "ttf"
	FormatOTF      Format = "otf"
	FormatSFNT     Format = "sfnt"
	FormatTTC      Format = "ttc"
	FormatGoogle   Format = "google"
	FormatManifest Format = "manifest"
)

// Asset is one catalog entry. Identity is ID; see the package comment.
type Asset struct {
	// ID is the content hash for local files, or a supplied
	// identifier (Google family spec, manifest URL) otherwise.
	ID string `json:"id" cbor:"id"`

	// Family is the font family name the asset belongs to.
	Family string `json:"family" cbor:"family"`

	Format Format `json:"format" cbor:"format"`

	// FileName is the base name of the backing file, when there is one.
	FileName string `json:"fileName,omitempty" cbor:"file_name,omitempty"`

	// Size is the byte length of the backing file, or 0 when no bytes
	// were fetched (Google references, unmaterialized remotes).
	Size uint64 `json:"size" cbor:"size"`

	// Path is an absolute local path, an absolute URL, or a Google
	// CSS endpoint. Never a bare relative path once registered.
	Path string `json:"path" cbor:"path"`

	// Descriptors carries CSS font-face descriptors (style, weight,
	// unicode-range, ...). Values are opaque strings; empty values
	// are dropped on read because the font-loading API downstream
	// rejects them.
	Descriptors map[string]string `json:"descriptors,omitempty" cbor:"descriptors,omitempty"`

	// SourceTag is the opaque owner identity used to scope bulk
	// removal of registered assets.
	SourceTag string `json:"sourceTag,omitempty" cbor:"source_tag,omitempty"`
}

// formatByExtension maps recognized filename extensions (lower case,
// with dot) to formats.
var formatByExtension = map[string]Format{
	".woff":  FormatWOFF,
	".woff2": FormatWOFF2,
	".ttf":   FormatTTF,
	".otf":   FormatOTF,
	".sfnt":  FormatSFNT,
	".ttc":   FormatTTC,
}

// formatByContentType maps HTTP Content-Type values (media type only,
// lower case) to formats. Consulted only when the filename extension
// is not recognized.
var formatByContentType = map[string]Format{
	"font/woff":                   FormatWOFF,
	"application/font-woff":       FormatWOFF,
	"font/woff2":                  FormatWOFF2,
	"font/ttf":                    FormatTTF,
	"application/x-font-ttf":      FormatTTF,
	"font/otf":                    FormatOTF,
	"application/x-font-opentype": FormatOTF,
	"font/sfnt":                   FormatSFNT,
	"application/font-sfnt":       FormatSFNT,
	"font/collection":             FormatTTC,
}

// FormatFromPath infers the format from a recognized filename
// extension. The second return is false for unrecognized extensions.
func FormatFromPath(path string) (Format, bool) {
	format, ok := formatByExtension[strings.ToLower(filepath.Ext(path))]
	return format, ok
}

// FormatFromContentType infers the format from an HTTP Content-Type
// header value. Parameters (";charset=...") are ignored.
func FormatFromContentType(contentType string) (Format, bool) {
	mediaType := contentType
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	format, ok := formatByContentType[mediaType]
	return format, ok
}

// RecognizedFile reports whether path has a recognized font file
// extension. Used when walking directories during registration.
func RecognizedFile(path string) bool {
	_, ok := FormatFromPath(path)
	return ok
}

// IsURL reports whether s is an absolute http(s) URL.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// PathToURI maps a local absolute path to a file:// URI. URLs (remote
// and Google endpoints) pass through unchanged. The read side of the
// registry applies this so downstream consumers always receive a URI.
func PathToURI(path string) string {
	if IsURL(path) {
		return path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// CleanDescriptors returns a copy of descriptors with empty values
// dropped, or nil when nothing remains. The input map is not modified.
func CleanDescriptors(descriptors map[string]string) map[string]string {
	if len(descriptors) == 0 {
		return nil
	}
	cleaned := make(map[string]string, len(descriptors))
	for key, value := range descriptors {
		if value == "" {
			continue
		}
		cleaned[key] = value
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
