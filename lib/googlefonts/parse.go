// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package googlefonts

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/fontdepot/fontdepot/lib/fontasset"
)

// EndpointPrefix is the only accepted URL prefix. It matches both the
// /css and /css2 API generations.
const EndpointPrefix = "https://fonts.googleapis.com/css"

// Parse extracts one asset per family parameter from a Google Fonts
// CSS URL. URLs outside the expected endpoint are rejected with a
// warning and an empty result, never an error: a bad URL in a batch
// must not abort the batch.
func Parse(logger *slog.Logger, rawURL string) []fontasset.Asset {
	if logger == nil {
		logger = slog.Default()
	}
	if !strings.HasPrefix(rawURL, EndpointPrefix) {
		logger.Warn("not a google fonts css url, skipping", "url", rawURL)
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		logger.Warn("unparseable google fonts url, skipping", "url", rawURL, "error", err)
		return nil
	}

	endpoint := parsed.Scheme + "://" + parsed.Host + parsed.Path
	families, display := splitQuery(parsed.RawQuery)
	if len(families) == 0 {
		logger.Warn("google fonts url has no family parameter", "url", rawURL)
		return nil
	}

	assets := make([]fontasset.Asset, 0, len(families))
	for _, raw := range families {
		name, err := displayName(raw)
		if err != nil {
			logger.Warn("undecodable family parameter, skipping", "family", raw, "error", err)
			continue
		}

		canonical := endpoint + "?family=" + raw
		if display != "" {
			canonical += "&display=" + display
		}

		assets = append(assets, fontasset.Asset{
			ID:     raw,
			Family: name,
			Format: fontasset.FormatGoogle,
			Path:   canonical,
		})
	}
	return assets
}

// splitQuery walks the raw query string without decoding, collecting
// every family value in its wire form (plus signs and percent escapes
// intact — the raw value is the asset ID) and the display value if
// present.
func splitQuery(rawQuery string) (families []string, display string) {
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		switch key {
		case "family":
			if value != "" {
				families = append(families, value)
			}
		case "display":
			display = value
		}
	}
	return families, display
}

// displayName decodes the raw family value into the human-readable
// family name, stripping any ":wght@..." style variant suffix.
func displayName(raw string) (string, error) {
	name := raw
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	return url.QueryUnescape(name)
}
