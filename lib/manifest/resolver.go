// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fontdepot/fontdepot/lib/fontasset"
	"github.com/fontdepot/fontdepot/lib/googlefonts"
)

// Registrar receives assets destined for the in-memory registry.
// Satisfied by *registry.Registry.
type Registrar interface {
	Register(ctx context.Context, source string, assets []fontasset.Asset) error
}

// Downloader materializes remote assets. Entries carry their full
// reference (URL path plus descriptors), not bare URLs, so nothing
// declared in the manifest is lost on the way to the installed asset.
// Satisfied by *download.Engine.
type Downloader interface {
	DownloadAssets(ctx context.Context, name string, requests []fontasset.Asset) ([]fontasset.Asset, error)
}

// StoreWriter persists assets directly, bypassing the in-memory
// registry. Satisfied by *fontstore.Store.
type StoreWriter interface {
	UpsertAll(ctx context.Context, assets []fontasset.Asset) error
}

// Config holds the collaborators a Resolver fans out to.
type Config struct {
	Registrar  Registrar
	Downloader Downloader
	Store      StoreWriter

	// HTTPClient fetches URL-shaped manifest paths. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Resolver parses manifests and dispatches their sources.
type Resolver struct {
	registrar  Registrar
	downloader Downloader
	store      StoreWriter
	client     *http.Client
	logger     *slog.Logger
}

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Registrar == nil {
		return nil, fmt.Errorf("manifest: Registrar is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("manifest: Store is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		registrar:  cfg.Registrar,
		downloader: cfg.Downloader,
		store:      cfg.Store,
		client:     client,
		logger:     logger,
	}, nil
}

// Resolve fetches, parses, and dispatches each manifest path on behalf
// of the named source. Invalid or unreachable manifests are logged and
// skipped; the remaining paths proceed. materialize selects between
// registering remote entries as URL references and actually
// downloading them; the flag threads through nested manifests.
//
// Each successfully parsed manifest is persisted as a format=manifest
// row so it can be re-resolved on startup.
func (r *Resolver) Resolve(ctx context.Context, source string, paths []string, materialize bool) error {
	for _, manifestPath := range paths {
		if err := r.resolveOne(ctx, source, manifestPath, materialize); err != nil {
			r.logger.Warn("skipping manifest",
				"source", source,
				"path", manifestPath,
				"error", err,
			)
		}
	}
	return nil
}

func (r *Resolver) resolveOne(ctx context.Context, source, manifestPath string, materialize bool) error {
	data, err := r.fetch(ctx, manifestPath)
	if err != nil {
		return err
	}

	doc, err := Parse(data)
	if err != nil {
		return err
	}

	if err := r.recordManifest(ctx, source, manifestPath, data); err != nil {
		r.logger.Warn("persisting manifest row", "path", manifestPath, "error", err)
	}

	for family, sources := range doc.Fonts {
		for i := range sources {
			src := &sources[i]
			opts := doc.effectiveOptions(src)
			if err := r.dispatch(ctx, source, manifestPath, family, src, opts, materialize); err != nil {
				r.logger.Warn("manifest source failed",
					"source", source,
					"path", manifestPath,
					"family", family,
					"type", src.Type,
					"error", err,
				)
			}
		}
	}
	return nil
}

// recordManifest upserts the manifest document itself so startup can
// find and re-resolve it.
func (r *Resolver) recordManifest(ctx context.Context, source, manifestPath string, data []byte) error {
	id, size, err := fontasset.ContentHash(bytes.NewReader(data))
	if err != nil {
		return err
	}
	name := path.Base(manifestPath)
	if !fontasset.IsURL(manifestPath) {
		name = filepath.Base(manifestPath)
	}
	return r.store.UpsertAll(ctx, []fontasset.Asset{{
		ID:        id,
		Family:    name,
		Format:    fontasset.FormatManifest,
		FileName:  name,
		Size:      size,
		Path:      manifestPath,
		SourceTag: source,
	}})
}

func (r *Resolver) dispatch(ctx context.Context, source, manifestPath, family string, src *Source, opts Options, materialize bool) error {
	switch src.Type {
	case TypeGoogle:
		return r.dispatchGoogle(ctx, source, src.URLs)
	case TypeLocal:
		return r.dispatchLocal(ctx, source, manifestPath, family, src.Slice, opts, materialize)
	case TypeRemote:
		return r.dispatchRemote(ctx, source, manifestPath, family, src.Slice, materialize)
	default:
		// Unreachable after validation.
		return fmt.Errorf("unrecognized source type %q", src.Type)
	}
}

// dispatchGoogle registers the parsed CSS references. No network fetch
// happens here; a download has to be requested explicitly.
func (r *Resolver) dispatchGoogle(ctx context.Context, source string, urls []string) error {
	var assets []fontasset.Asset
	for _, u := range urls {
		assets = append(assets, googlefonts.Parse(r.logger, u)...)
	}
	if len(assets) == 0 {
		return fmt.Errorf("no parseable google urls")
	}
	return r.registrar.Register(ctx, source, assets)
}

func (r *Resolver) dispatchLocal(ctx context.Context, source, manifestPath, family string, slice []fontasset.Asset, opts Options, materialize bool) error {
	assets, nested, err := r.prepareSlice(manifestPath, family, slice, opts.GetSHA256 || materialize)
	if err != nil {
		return err
	}
	if err := r.resolveNested(ctx, source, nested, materialize); err != nil {
		return err
	}
	if len(assets) == 0 {
		return nil
	}
	if materialize {
		return r.store.UpsertAll(ctx, assets)
	}
	return r.registrar.Register(ctx, source, assets)
}

func (r *Resolver) dispatchRemote(ctx context.Context, source, manifestPath, family string, slice []fontasset.Asset, materialize bool) error {
	assets, nested, err := r.prepareSlice(manifestPath, family, slice, false)
	if err != nil {
		return err
	}
	if err := r.resolveNested(ctx, source, nested, materialize); err != nil {
		return err
	}
	if len(assets) == 0 {
		return nil
	}

	if materialize {
		if r.downloader == nil {
			return fmt.Errorf("no downloader configured for remote source")
		}
		_, err := r.downloader.DownloadAssets(ctx, family, assets)
		return err
	}
	return r.registrar.Register(ctx, source, assets)
}

// prepareSlice resolves paths against the manifest's location, fills
// derived fields, and optionally hashes local files. Entries that are
// themselves manifests are split out for recursive resolution.
func (r *Resolver) prepareSlice(manifestPath, family string, slice []fontasset.Asset, hashLocal bool) (assets []fontasset.Asset, nested []string, err error) {
	for _, entry := range slice {
		resolved, err := resolvePath(manifestPath, entry.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving %q: %w", entry.Path, err)
		}
		entry.Path = resolved

		if isManifestPath(resolved) {
			nested = append(nested, resolved)
			continue
		}

		if entry.Family == "" {
			entry.Family = family
		}
		if entry.FileName == "" {
			if fontasset.IsURL(resolved) {
				entry.FileName = path.Base(resolved)
			} else {
				entry.FileName = filepath.Base(resolved)
			}
		}
		if entry.Format == "" {
			if format, ok := fontasset.FormatFromPath(resolved); ok {
				entry.Format = format
			}
		}

		if hashLocal && !fontasset.IsURL(resolved) {
			id, size, err := fontasset.ContentHashFile(resolved)
			if err != nil {
				return nil, nil, fmt.Errorf("hashing %s: %w", resolved, err)
			}
			entry.ID = id
			entry.Size = size
		}
		if entry.ID == "" {
			entry.ID = resolved
		}

		assets = append(assets, entry)
	}
	return assets, nested, nil
}

func (r *Resolver) resolveNested(ctx context.Context, source string, nested []string, materialize bool) error {
	if len(nested) == 0 {
		return nil
	}
	return r.Resolve(ctx, source, nested, materialize)
}

// isManifestPath recognizes nested manifest references by their .json
// extension.
func isManifestPath(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".json")
}

// resolvePath makes an entry path absolute. Absolute URLs and absolute
// filesystem paths pass through; relative paths resolve against the
// manifest's URL directory (remote manifest) or file directory (local
// manifest).
func resolvePath(manifestPath, entryPath string) (string, error) {
	if fontasset.IsURL(entryPath) || filepath.IsAbs(entryPath) {
		return entryPath, nil
	}

	if fontasset.IsURL(manifestPath) {
		base, err := url.Parse(manifestPath)
		if err != nil {
			return "", err
		}
		ref, err := url.Parse(entryPath)
		if err != nil {
			return "", err
		}
		return base.ResolveReference(ref).String(), nil
	}

	return filepath.Clean(filepath.Join(filepath.Dir(manifestPath), entryPath)), nil
}

// fetch reads a manifest document over HTTP or from disk.
func (r *Resolver) fetch(ctx context.Context, manifestPath string) ([]byte, error) {
	if !fontasset.IsURL(manifestPath) {
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("reading manifest: %w", err)
		}
		return data, nil
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestPath, nil)
	if err != nil {
		return nil, fmt.Errorf("building manifest request: %w", err)
	}
	response, err := r.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching manifest: %s", response.Status)
	}
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading manifest body: %w", err)
	}
	return data, nil
}
