// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for FontDepot.
//
// Configuration is loaded from a single YAML file specified by:
//   - FONTDEPOT_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Environment variables
// do not override file values; the only expansion performed is ${HOME}
// in paths for portability.
package config
