// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"

	"github.com/fontdepot/fontdepot/lib/fontasset"
)

// transferChunkSize is the read granularity of the streaming copy.
// Cancellation is observed between chunks, so this also bounds how
// much work happens after a cancel request.
const transferChunkSize = 32 * 1024

// teardown releases a transfer's resources exactly once, whichever of
// the abort or success paths gets there first. Abort may be reached
// from several places (transport error, cancel check, stream error);
// the destructive effects must not run twice.
type teardown struct {
	once     sync.Once
	cancel   context.CancelFunc
	closers  []io.Closer
	tempPath string
}

// abort runs the full cleanup: cancel the transport, close every
// stream, and remove the temp file.
func (td *teardown) abort() {
	td.once.Do(func() {
		if td.cancel != nil {
			td.cancel()
		}
		for _, c := range td.closers {
			c.Close()
		}
		if td.tempPath != "" {
			os.Remove(td.tempPath)
		}
	})
}

// finish closes the streams but keeps the temp file for installation.
func (td *teardown) finish() {
	td.once.Do(func() {
		for _, c := range td.closers {
			c.Close()
		}
	})
}

// transfer streams one URL to disk and installs it. The returned asset
// has the content hash as its ID; Family is left for the caller to
// tag with the batch's family.
func (e *Engine) transfer(ctx context.Context, batchName string, file *fileDownload, batchDir string) (fontasset.Asset, error) {
	if file.cancelWanted() {
		file.markCancelled()
		return fontasset.Asset{}, fmt.Errorf("%w before transfer of %s", ErrCancelled, file.url)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			file.markCancelled()
			return fontasset.Asset{}, fmt.Errorf("%w while rate limited: %s", ErrCancelled, file.url)
		}
	}

	transferCtx, cancelTransfer := context.WithCancel(ctx)
	file.beginTransfer(cancelTransfer)
	defer cancelTransfer()

	request, err := http.NewRequestWithContext(transferCtx, http.MethodGet, file.url, nil)
	if err != nil {
		file.markFailed()
		return fontasset.Asset{}, fmt.Errorf("%w: building request for %s: %v", ErrFailed, file.url, err)
	}
	request.Header.Set("Accept-Encoding", "gzip")

	response, err := e.client.Do(request)
	if err != nil {
		if file.cancelWanted() {
			file.markCancelled()
			return fontasset.Asset{}, fmt.Errorf("%w: %s", ErrCancelled, file.url)
		}
		file.markFailed()
		return fontasset.Asset{}, fmt.Errorf("%w: fetching %s: %v", ErrFailed, file.url, err)
	}

	td := &teardown{cancel: cancelTransfer, closers: []io.Closer{response.Body}}

	if response.StatusCode != http.StatusOK {
		td.abort()
		file.markFailed()
		return fontasset.Asset{}, fmt.Errorf("%w: %s returned %s", ErrFailed, file.url, response.Status)
	}

	// A gzip-encoded response reports the compressed length while
	// progress counts decompressed bytes; seeding it would let the
	// progress ratio run past 1.
	if response.ContentLength > 0 && response.Header.Get("Content-Encoding") != "gzip" {
		file.setContentLength(uint64(response.ContentLength))
	}

	fileName := responseFileName(response, file.url)
	format, ok := fontasset.FormatFromPath(fileName)
	if !ok {
		format, ok = fontasset.FormatFromContentType(response.Header.Get("Content-Type"))
	}
	if !ok {
		td.abort()
		file.markFailed()
		return fontasset.Asset{}, fmt.Errorf("%w: %s (file %q, content-type %q)",
			ErrUnknownFontType, file.url, fileName, response.Header.Get("Content-Type"))
	}

	var body io.Reader = response.Body
	if response.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(response.Body)
		if err != nil {
			td.abort()
			file.markFailed()
			return fontasset.Asset{}, fmt.Errorf("%w: gzip stream from %s: %v", ErrFailed, file.url, err)
		}
		td.closers = append(td.closers, gzipReader)
		body = gzipReader
	}

	// The sequence number keeps two same-named URLs in one batch from
	// writing the same temp file.
	tempPath := filepath.Join(batchDir, fmt.Sprintf("%s.%d.part", fileName, file.seq))
	tempFile, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		td.abort()
		file.markFailed()
		return fontasset.Asset{}, fmt.Errorf("%w: creating temp file for %s: %v", ErrFailed, file.url, err)
	}
	td.closers = append(td.closers, tempFile)
	td.tempPath = tempPath

	// Stream: every chunk feeds the hasher and the temp file, bumps
	// the progress counter, and re-checks the cancel flag.
	hasher := blake3.New()
	var written uint64
	buffer := make([]byte, transferChunkSize)
	for {
		if file.cancelWanted() {
			td.abort()
			file.markCancelled()
			return fontasset.Asset{}, fmt.Errorf("%w: %s", ErrCancelled, file.url)
		}

		n, readErr := body.Read(buffer)
		if n > 0 {
			chunk := buffer[:n]
			hasher.Write(chunk)
			if _, err := tempFile.Write(chunk); err != nil {
				td.abort()
				file.markFailed()
				return fontasset.Asset{}, fmt.Errorf("%w: writing temp file for %s: %v", ErrFailed, file.url, err)
			}
			written += uint64(n)
			file.addProgress(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if file.cancelWanted() {
				td.abort()
				file.markCancelled()
				return fontasset.Asset{}, fmt.Errorf("%w: %s", ErrCancelled, file.url)
			}
			td.abort()
			file.markFailed()
			return fontasset.Asset{}, fmt.Errorf("%w: reading %s: %v", ErrFailed, file.url, readErr)
		}
	}

	if err := tempFile.Sync(); err != nil {
		td.abort()
		file.markFailed()
		return fontasset.Asset{}, fmt.Errorf("%w: syncing temp file for %s: %v", ErrFailed, file.url, err)
	}
	td.finish()

	finalPath := filepath.Join(e.installDir, fileName)
	if err := e.install(ctx, tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		file.markFailed()
		return fontasset.Asset{}, fmt.Errorf("%w: installing %s: %v", ErrFailed, fileName, err)
	}

	file.markFinished()
	return fontasset.Asset{
		ID:          hex.EncodeToString(hasher.Sum(nil)),
		Format:      format,
		FileName:    fileName,
		Size:        written,
		Path:        finalPath,
		Descriptors: file.descriptors,
	}, nil
}

// install renames the temp file into place. An existing destination is
// deleted first along with its store row (last-writer-wins), and the
// rename itself is retried with backoff to tolerate transient
// filesystem contention. Installs are serialized so two transfers
// landing on the same final name cannot interleave the
// stat/remove/rename sequence.
func (e *Engine) install(ctx context.Context, tempPath, finalPath string) error {
	e.installMu.Lock()
	defer e.installMu.Unlock()

	if _, err := os.Stat(finalPath); err == nil {
		if err := os.Remove(finalPath); err != nil {
			return fmt.Errorf("removing previous %s: %w", finalPath, err)
		}
		removed, err := e.store.RemoveByPath(ctx, finalPath)
		if err != nil {
			return fmt.Errorf("removing store row for %s: %w", finalPath, err)
		}
		if removed > 0 {
			e.logger.Info("replaced previously installed font", "path", finalPath, "rows", removed)
		}
	}

	if err := e.renamePolicy.Do(ctx, func() error {
		return os.Rename(tempPath, finalPath)
	}); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// responseFileName picks the installed file's name: the
// Content-Disposition filename when present, else the URL's basename.
// The name is reduced to its base so a hostile header cannot escape
// the install directory.
func responseFileName(response *http.Response, rawURL string) string {
	if disposition := response.Header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return filepath.Base(name)
			}
		}
	}

	if parsed, err := url.Parse(rawURL); err == nil {
		if base := path.Base(parsed.Path); base != "." && base != "/" {
			return base
		}
	}
	return "download"
}
