// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/fontdepot/fontdepot/lib/fontasset"
)

// ErrInvalid marks a document that failed structural validation.
var ErrInvalid = errors.New("manifest: invalid document")

// Source type tags.
const (
	TypeGoogle = "google"
	TypeLocal  = "local"
	TypeRemote = "remote"
)

// Options carries per-manifest or per-source resolution options.
type Options struct {
	// GetSHA256 requests eager content hashing of local slice entries
	// at registration time instead of leaving IDs to the caller.
	GetSHA256 bool `json:"getSha256"`
}

// Source is one tagged origin for a family. Exactly one payload field
// is meaningful per type: URLs for "google", Slice for "local" and
// "remote".
type Source struct {
	Type    string           `json:"type"`
	URLs    []string         `json:"urls,omitempty"`
	Slice   []fontasset.Asset `json:"slice,omitempty"`
	Options *Options         `json:"options,omitempty"`
}

// Manifest is the decoded document.
type Manifest struct {
	Version string              `json:"version"`
	Fonts   map[string][]Source `json:"fonts"`
	Options *Options            `json:"options,omitempty"`
}

// Parse decodes and validates a manifest document. The input may use
// JSONC conveniences (comments, trailing commas); it is normalized to
// strict JSON before decoding. Validation fails closed: any structural
// problem rejects the whole document with an error wrapping ErrInvalid.
func Parse(data []byte) (*Manifest, error) {
	var doc Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (m *Manifest) validate() error {
	if m.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalid)
	}
	if len(m.Fonts) == 0 {
		return fmt.Errorf("%w: missing fonts", ErrInvalid)
	}
	for family, sources := range m.Fonts {
		if family == "" {
			return fmt.Errorf("%w: empty family name", ErrInvalid)
		}
		if len(sources) == 0 {
			return fmt.Errorf("%w: family %q has no sources", ErrInvalid, family)
		}
		for i, source := range sources {
			if err := source.validate(); err != nil {
				return fmt.Errorf("%w: family %q source %d: %v", ErrInvalid, family, i, err)
			}
		}
	}
	return nil
}

func (s *Source) validate() error {
	switch s.Type {
	case TypeGoogle:
		if len(s.URLs) == 0 {
			return errors.New("google source without urls")
		}
		if len(s.Slice) > 0 {
			return errors.New("google source must not carry a slice")
		}
	case TypeLocal, TypeRemote:
		if len(s.Slice) == 0 {
			return fmt.Errorf("%s source without slice", s.Type)
		}
		if len(s.URLs) > 0 {
			return fmt.Errorf("%s source must not carry urls", s.Type)
		}
		for i, asset := range s.Slice {
			if asset.Path == "" {
				return fmt.Errorf("slice entry %d has no path", i)
			}
		}
	case "":
		return errors.New("source without type")
	default:
		return fmt.Errorf("unrecognized source type %q", s.Type)
	}
	return nil
}

// effectiveOptions layers a source's options over the document's.
func (m *Manifest) effectiveOptions(s *Source) Options {
	var opts Options
	if m.Options != nil {
		opts = *m.Options
	}
	if s.Options != nil {
		opts = *s.Options
	}
	return opts
}
