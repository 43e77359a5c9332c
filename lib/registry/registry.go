// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fontdepot/fontdepot/lib/fontasset"
	"github.com/fontdepot/fontdepot/lib/googlefonts"
	"github.com/fontdepot/fontdepot/lib/rwlock"
)

// ErrInvalidSource marks a registration with a blank source tag. The
// operation is a guarded no-op: logged, nothing registered.
var ErrInvalidSource = errors.New("registry: invalid source")

// Store is the slice of the backing store the registry needs.
// Satisfied by *fontstore.Store.
type Store interface {
	QueryByFamilies(ctx context.Context, families []string) ([]fontasset.Asset, error)
	ListByFormat(ctx context.Context, format fontasset.Format) ([]fontasset.Asset, error)
	RemoveByID(ctx context.Context, id string) error
}

// ManifestResolver dispatches manifest documents. Satisfied by
// *manifest.Resolver; injected after construction because the resolver
// registers back into this registry.
type ManifestResolver interface {
	Resolve(ctx context.Context, source string, paths []string, materialize bool) error
}

// PathOptions tunes RegisterPaths.
type PathOptions struct {
	// Descriptors is attached to every asset produced by the walk.
	Descriptors map[string]string
}

// Config holds the parameters for creating a Registry.
type Config struct {
	// Store fuses persisted rows into the read view. Required.
	Store Store

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// NoWriterPreference disables the lock's writer preference. The
	// default (preference on) keeps a steady stream of readers from
	// starving registrations.
	NoWriterPreference bool
}

// Registry is the font asset catalog. Safe for concurrent use.
type Registry struct {
	store    Store
	logger   *slog.Logger
	lock     *rwlock.Lock
	resolver ManifestResolver

	// assets is the ordered in-memory list. Guarded by lock's write
	// side; readers snapshot it under the read side.
	assets []fontasset.Asset
}

// New creates a Registry.
func New(cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("registry: Store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  cfg.Store,
		logger: logger,
		lock:   rwlock.New(rwlock.Options{WriterPreference: !cfg.NoWriterPreference}),
	}, nil
}

// SetManifestResolver wires the manifest resolver in after
// construction. Must be called before ManifestRegister or
// ResolvePersistedManifests.
func (r *Registry) SetManifestResolver(resolver ManifestResolver) {
	r.resolver = resolver
}

// Register adds assets on behalf of source. Same-ID assets replace
// their earlier registration in place. The whole batch appears
// atomically with respect to concurrent register/clear/get.
func (r *Registry) Register(ctx context.Context, source string, assets []fontasset.Asset) error {
	if strings.TrimSpace(source) == "" {
		r.logger.Warn("register with blank source", "assets", len(assets))
		return ErrInvalidSource
	}
	if len(assets) == 0 {
		return nil
	}

	tagged := make([]fontasset.Asset, len(assets))
	for i, asset := range assets {
		asset.SourceTag = source
		if asset.ID == "" {
			asset.ID = asset.Path
		}
		tagged[i] = asset
	}

	return r.lock.WithWrite(ctx, func() error {
		r.assets = fontasset.Merge(r.assets, tagged)
		r.logger.Debug("registered assets", "source", source, "count", len(tagged))
		return nil
	})
}

// RegisterPaths resolves files or directories into concrete assets for
// one family and registers them. Directories are walked recursively
// and filtered to recognized font extensions; each file's ID is its
// content hash and Size its byte length. Hashing happens before the
// lock is taken; the registration itself is atomic.
func (r *Registry) RegisterPaths(ctx context.Context, source, family string, paths []string, opts PathOptions) error {
	if strings.TrimSpace(source) == "" {
		r.logger.Warn("register with blank source", "family", family)
		return ErrInvalidSource
	}

	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			r.logger.Warn("skipping unreadable path", "source", source, "path", p, "error", err)
			continue
		}
		if !info.IsDir() {
			if fontasset.RecognizedFile(p) {
				files = append(files, p)
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() && fontasset.RecognizedFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			r.logger.Warn("directory walk failed", "source", source, "path", p, "error", err)
		}
	}

	var assets []fontasset.Asset
	for _, file := range files {
		id, size, err := fontasset.ContentHashFile(file)
		if err != nil {
			r.logger.Warn("skipping unhashable file", "source", source, "path", file, "error", err)
			continue
		}
		format, _ := fontasset.FormatFromPath(file)
		assets = append(assets, fontasset.Asset{
			ID:          id,
			Family:      family,
			Format:      format,
			FileName:    filepath.Base(file),
			Size:        size,
			Path:        file,
			Descriptors: opts.Descriptors,
		})
	}
	if len(assets) == 0 {
		r.logger.Warn("no recognized font files", "source", source, "family", family, "paths", paths)
		return nil
	}
	return r.Register(ctx, source, assets)
}

// GoogleFontRegister parses Google Fonts CSS URLs into reference
// assets and registers them. Foreign URLs are logged and skipped.
func (r *Registry) GoogleFontRegister(ctx context.Context, source string, urls []string) error {
	if strings.TrimSpace(source) == "" {
		r.logger.Warn("register with blank source", "urls", len(urls))
		return ErrInvalidSource
	}
	var assets []fontasset.Asset
	for _, u := range urls {
		assets = append(assets, googlefonts.Parse(r.logger, u)...)
	}
	if len(assets) == 0 {
		return nil
	}
	return r.Register(ctx, source, assets)
}

// ManifestRegister resolves manifest documents in register-metadata
// mode on behalf of source.
func (r *Registry) ManifestRegister(ctx context.Context, source string, paths []string) error {
	if strings.TrimSpace(source) == "" {
		r.logger.Warn("register with blank source", "manifests", len(paths))
		return ErrInvalidSource
	}
	if r.resolver == nil {
		return fmt.Errorf("registry: no manifest resolver wired")
	}
	return r.resolver.Resolve(ctx, source, paths, false)
}

// ResolvePersistedManifests re-resolves every persisted manifest row.
// Run at startup to repopulate derived state; individual failures are
// logged, not returned.
func (r *Registry) ResolvePersistedManifests(ctx context.Context) error {
	if r.resolver == nil {
		return fmt.Errorf("registry: no manifest resolver wired")
	}
	rows, err := r.store.ListByFormat(ctx, fontasset.FormatManifest)
	if err != nil {
		return fmt.Errorf("registry: listing persisted manifests: %w", err)
	}
	for _, row := range rows {
		if err := r.resolver.Resolve(ctx, row.SourceTag, []string{row.Path}, false); err != nil {
			r.logger.Warn("re-resolving persisted manifest",
				"path", row.Path,
				"source", row.SourceTag,
				"error", err,
			)
		}
	}
	return nil
}

// Get returns the assets of the requested families (all families when
// empty), fusing the in-memory list with the backing store. It first
// waits for every write enqueued before the call, so callers observe
// their own registrations. Local paths come back as file:// URIs and
// empty descriptor values are dropped. Persisted manifest rows are
// bookkeeping, not fonts, and are excluded.
func (r *Registry) Get(ctx context.Context, families []string) ([]fontasset.Asset, error) {
	if err := r.lock.WaitForWritesToComplete(ctx); err != nil {
		return nil, err
	}

	var snapshot []fontasset.Asset
	err := r.lock.WithRead(ctx, func() error {
		snapshot = append([]fontasset.Asset(nil), r.assets...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	persisted, err := r.store.QueryByFamilies(ctx, families)
	if err != nil {
		return nil, fmt.Errorf("registry: querying store: %w", err)
	}

	wanted := make(map[string]bool, len(families))
	for _, family := range families {
		wanted[family] = true
	}
	var memory []fontasset.Asset
	for _, asset := range snapshot {
		if len(wanted) == 0 || wanted[asset.Family] {
			memory = append(memory, asset)
		}
	}

	// Store rows win on ID collision: the store is the source of truth
	// across restarts.
	fused := fontasset.Merge(memory, persisted)

	out := make([]fontasset.Asset, 0, len(fused))
	for _, asset := range fused {
		if asset.Format == fontasset.FormatManifest {
			continue
		}
		asset.Path = fontasset.PathToURI(asset.Path)
		asset.Descriptors = fontasset.CleanDescriptors(asset.Descriptors)
		out = append(out, asset)
	}
	return out, nil
}

// Clear removes every in-memory asset registered by source. Persisted
// rows are untouched: downloaded files survive a plugin's unload.
// No-op when nothing matches.
func (r *Registry) Clear(ctx context.Context, source string) error {
	return r.lock.WithWrite(ctx, func() error {
		kept := r.assets[:0]
		removed := 0
		for _, asset := range r.assets {
			if asset.SourceTag == source {
				removed++
				continue
			}
			kept = append(kept, asset)
		}
		r.assets = kept
		if removed > 0 {
			r.logger.Debug("cleared source", "source", source, "removed", removed)
		}
		return nil
	})
}

// Delete removes the given assets of a family: their store rows first
// (the store record is authoritative), then a best-effort delete of
// the backing files. File deletion failures are logged, not returned.
func (r *Registry) Delete(ctx context.Context, family string, assets []fontasset.Asset) error {
	for _, asset := range assets {
		if asset.ID != "" {
			if err := r.store.RemoveByID(ctx, asset.ID); err != nil {
				return fmt.Errorf("registry: removing store row %s: %w", asset.ID, err)
			}
		}
		path := asset.Path
		if path == "" || fontasset.IsURL(path) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("deleting font file",
				"family", family,
				"path", path,
				"error", err,
			)
		}
	}
	return nil
}
