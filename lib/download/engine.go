// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fontdepot/fontdepot/lib/clock"
	"github.com/fontdepot/fontdepot/lib/fontasset"
	"github.com/fontdepot/fontdepot/lib/googlefonts"
	"github.com/fontdepot/fontdepot/lib/retry"
)

// Sentinel errors for per-file outcomes. Batch callers distinguish a
// caller-requested cancellation from a genuine failure with errors.Is.
var (
	// ErrUnknownFontType marks a download whose format could not be
	// inferred from the filename extension or the Content-Type.
	ErrUnknownFontType = errors.New("download: unknown font type")

	// ErrCancelled marks a transfer aborted at the caller's request.
	ErrCancelled = errors.New("download: cancelled")

	// ErrFailed marks a transport, stream, or install failure.
	ErrFailed = errors.New("download: failed")
)

// Store is the slice of the backing store the engine needs. Satisfied
// by *fontstore.Store.
type Store interface {
	UpsertAll(ctx context.Context, assets []fontasset.Asset) error
	RemoveByPath(ctx context.Context, path string) (int, error)
}

// Config holds the parameters for creating an Engine.
type Config struct {
	// Store receives successfully downloaded assets and loses rows
	// for files that get overwritten. Required.
	Store Store

	// InstallDir is where finished files are renamed to. Required.
	InstallDir string

	// TempDir is the root for in-flight files; each batch gets a
	// sanitized subdirectory to keep names from colliding. Required.
	TempDir string

	// HTTPClient is used for all fetches. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Clock drives retry backoff and batch retirement. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// ManifestHandler materializes a manifest URL found inside a
	// batch. Nil means manifest URLs fail with ErrUnknownFontType.
	ManifestHandler func(ctx context.Context, url string) error

	// Concurrency bounds parallel transfers within one batch.
	// Zero or negative means unbounded.
	Concurrency int

	// RetirementGrace is how long a settled batch stays observable
	// before leaving the active set. Defaults to 2s.
	RetirementGrace time.Duration

	// RenameAttempts and RenameBackoff shape the install retry:
	// attempts total (default 3) with exponential backoff from the
	// base delay (default 100ms).
	RenameAttempts int
	RenameBackoff  time.Duration

	// RequestsPerSecond, when positive, rate-limits outgoing fetches
	// across all batches.
	RequestsPerSecond float64
}

// Engine runs download batches. Safe for concurrent use.
type Engine struct {
	store           Store
	installDir      string
	tempDir         string
	client          *http.Client
	clock           clock.Clock
	logger          *slog.Logger
	manifestHandler func(ctx context.Context, url string) error
	concurrency     int
	grace           time.Duration
	renamePolicy    retry.Policy
	limiter         *rate.Limiter

	// installMu serializes the stat/remove/rename install sequence
	// across transfers targeting the same final path.
	installMu sync.Mutex

	mu      sync.Mutex
	batches map[string]*batch
}

// New creates an Engine. Returns an error when a required field is
// missing.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("download: Store is required")
	}
	if cfg.InstallDir == "" {
		return nil, fmt.Errorf("download: InstallDir is required")
	}
	if cfg.TempDir == "" {
		return nil, fmt.Errorf("download: TempDir is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := cfg.RetirementGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	attempts := cfg.RenameAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.RenameBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Engine{
		store:           cfg.Store,
		installDir:      cfg.InstallDir,
		tempDir:         cfg.TempDir,
		client:          client,
		clock:           clk,
		logger:          logger,
		manifestHandler: cfg.ManifestHandler,
		concurrency:     cfg.Concurrency,
		grace:           grace,
		renamePolicy: retry.Policy{
			Attempts: attempts,
			Delay:    retry.Exponential(backoff),
			Clock:    clk,
		},
		limiter: limiter,
		batches: make(map[string]*batch),
	}, nil
}

// Download runs every URL of the named batch concurrently and blocks
// until all files settle. Individual failures do not abort the batch;
// the error reports only batch-level problems (duplicate name, store
// write). Successfully produced assets are upserted tagged with the
// batch's family (its name) before Download returns.
func (e *Engine) Download(ctx context.Context, name string, urls []string) ([]fontasset.Asset, error) {
	requests := make([]fontasset.Asset, len(urls))
	for i, url := range urls {
		requests[i] = fontasset.Asset{Path: url}
	}
	return e.DownloadAssets(ctx, name, requests)
}

// DownloadAssets is Download with full asset references: each entry's
// Path is fetched and its Descriptors carry through onto the produced
// asset. The manifest resolver materializes remote slices through this
// so descriptors declared in the manifest survive the download.
func (e *Engine) DownloadAssets(ctx context.Context, name string, requests []fontasset.Asset) ([]fontasset.Asset, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("download: batch name is empty")
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("download: batch %q has no urls", name)
	}

	b := &batch{name: name}
	for i, request := range requests {
		b.files = append(b.files, &fileDownload{
			url:         request.Path,
			seq:         i,
			descriptors: request.Descriptors,
		})
	}

	e.mu.Lock()
	if _, exists := e.batches[name]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("download: batch %q already active", name)
	}
	e.batches[name] = b
	e.mu.Unlock()

	batchDir := filepath.Join(e.tempDir, sanitizeBatchName(name))
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		e.retire(name, false)
		return nil, fmt.Errorf("download: creating temp dir for %q: %w", name, err)
	}
	if err := os.MkdirAll(e.installDir, 0o755); err != nil {
		e.retire(name, false)
		return nil, fmt.Errorf("download: creating install dir: %w", err)
	}

	var (
		resultMu sync.Mutex
		produced []fontasset.Asset
	)

	group, groupCtx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		group.SetLimit(e.concurrency)
	}
	for _, file := range b.files {
		file := file
		group.Go(func() error {
			assets, err := e.downloadOne(groupCtx, b, file, batchDir)
			if err != nil {
				// Settle-all: the failure lives in the file state and
				// the log; it must not cancel sibling transfers.
				e.logger.Warn("download settled with error",
					"batch", name,
					"url", file.url,
					"error", err,
				)
				return nil
			}
			resultMu.Lock()
			produced = append(produced, assets...)
			resultMu.Unlock()
			return nil
		})
	}
	group.Wait()

	// Tag everything with the batch's family and persist. Inline
	// results (Google CSS) carry their own family already.
	for i := range produced {
		if produced[i].Family == "" {
			produced[i].Family = name
		}
	}
	var storeErr error
	if len(produced) > 0 {
		if storeErr = e.store.UpsertAll(ctx, produced); storeErr != nil {
			e.logger.Error("persisting downloaded assets", "batch", name, "error", storeErr)
		}
	}

	e.scheduleRetirement(b)
	return produced, storeErr
}

// Cancel requests cancellation of the named files, or of the whole
// batch when urls is empty. Unknown batches and already-terminal files
// are ignored. The acknowledgment is observable via Status.
func (e *Engine) Cancel(name string, urls []string) {
	e.mu.Lock()
	b, ok := e.batches[name]
	e.mu.Unlock()
	if !ok {
		e.logger.Warn("cancel for unknown batch", "batch", name)
		return
	}

	wanted := make(map[string]bool, len(urls))
	for _, url := range urls {
		wanted[url] = true
	}

	for _, file := range b.files {
		if len(wanted) == 0 || wanted[file.url] {
			file.requestCancel()
		}
	}
}

// Status returns a snapshot of the named batch, or ok=false when the
// batch is unknown or already retired.
func (e *Engine) Status(name string) ([]FileStatus, bool) {
	e.mu.Lock()
	b, ok := e.batches[name]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	return b.statuses(), true
}

// ActiveBatches lists the names of batches still in the active set.
func (e *Engine) ActiveBatches() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.batches))
	for name := range e.batches {
		names = append(names, name)
	}
	return names
}

// scheduleRetirement removes a settled batch from the active set.
// Fully cancelled batches leave immediately; anything else stays
// observable for the grace period so pollers catch the final state.
func (e *Engine) scheduleRetirement(b *batch) {
	if b.allCancelled() {
		e.retire(b.name, false)
		return
	}
	expired := e.clock.After(e.grace)
	go func() {
		<-expired
		e.retire(b.name, true)
	}()
}

func (e *Engine) retire(name string, logIt bool) {
	e.mu.Lock()
	delete(e.batches, name)
	e.mu.Unlock()
	if logIt {
		e.logger.Debug("batch retired", "batch", name)
	}
}

// downloadOne settles a single batch entry. Google CSS URLs and
// manifest URLs resolve inline; everything else streams to disk.
func (e *Engine) downloadOne(ctx context.Context, b *batch, file *fileDownload, batchDir string) ([]fontasset.Asset, error) {
	if strings.HasPrefix(file.url, googlefonts.EndpointPrefix) {
		assets := googlefonts.Parse(e.logger, file.url)
		file.markFinished()
		return assets, nil
	}

	if isManifestURL(file.url) {
		if e.manifestHandler == nil {
			file.markFailed()
			return nil, fmt.Errorf("%w: manifest url %s with no handler", ErrUnknownFontType, file.url)
		}
		if err := e.manifestHandler(ctx, file.url); err != nil {
			file.markFailed()
			return nil, fmt.Errorf("materializing manifest %s: %w", file.url, err)
		}
		file.markFinished()
		return nil, nil
	}

	asset, err := e.transfer(ctx, b.name, file, batchDir)
	if err != nil {
		return nil, err
	}
	return []fontasset.Asset{asset}, nil
}

// isManifestURL recognizes manifest documents embedded in a batch by
// their .json suffix (query string ignored).
func isManifestURL(rawURL string) bool {
	trimmed := rawURL
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(strings.ToLower(trimmed), ".json")
}

// sanitizeBatchName maps a batch name to a filesystem-safe directory
// name. Anything outside [A-Za-z0-9._-] becomes an underscore.
func sanitizeBatchName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		default:
			return '_'
		}
	}, name)
	if mapped == "" {
		return "_"
	}
	return mapped
}
