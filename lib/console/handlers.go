// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"fmt"
	"time"

	"github.com/fontdepot/fontdepot/lib/codec"
	"github.com/fontdepot/fontdepot/lib/download"
	"github.com/fontdepot/fontdepot/lib/fontasset"
)

// Engine is the slice of the download engine the console needs.
// Satisfied by *download.Engine.
type Engine interface {
	Download(ctx context.Context, name string, urls []string) ([]fontasset.Asset, error)
	Cancel(name string, urls []string)
	Status(name string) ([]download.FileStatus, bool)
	ActiveBatches() []string
}

// Deleter removes assets. Satisfied by *registry.Registry.
type Deleter interface {
	Delete(ctx context.Context, family string, assets []fontasset.Asset) error
}

// DownloadRequest starts a named batch.
type DownloadRequest struct {
	Action string   `cbor:"action"`
	Name   string   `cbor:"name"`
	URLs   []string `cbor:"urls"`
}

// DownloadResponse reports the assets a settled batch produced.
type DownloadResponse struct {
	Assets []fontasset.Asset `cbor:"assets"`
}

// CancelRequest requests cancellation of named files, or the whole
// batch when URLs is empty.
type CancelRequest struct {
	Action string   `cbor:"action"`
	Name   string   `cbor:"name"`
	URLs   []string `cbor:"urls,omitempty"`
}

// StatusRequest polls a batch, or lists active batches when Name is
// empty.
type StatusRequest struct {
	Action string `cbor:"action"`
	Name   string `cbor:"name,omitempty"`
}

// StatusResponse is a point-in-time batch snapshot plus the interval
// clients should poll at.
type StatusResponse struct {
	Batches        []string              `cbor:"batches,omitempty"`
	Files          []download.FileStatus `cbor:"files,omitempty"`
	PollIntervalMS int64                 `cbor:"poll_interval_ms"`
}

// DeleteRequest removes a family's assets: store rows first, then a
// best-effort delete of the backing files.
type DeleteRequest struct {
	Action string            `cbor:"action"`
	Family string            `cbor:"family"`
	Assets []fontasset.Asset `cbor:"assets"`
}

// RegisterFontHandlers wires the fonts/* actions onto the server.
func RegisterFontHandlers(server *Server, engine Engine, deleter Deleter, pollInterval time.Duration) {
	server.Handle("fonts/download", func(ctx context.Context, raw []byte) (any, error) {
		var req DownloadRequest
		if err := codec.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding download request: %w", err)
		}
		assets, err := engine.Download(ctx, req.Name, req.URLs)
		if err != nil {
			return nil, err
		}
		return DownloadResponse{Assets: assets}, nil
	})

	server.Handle("fonts/cancel", func(ctx context.Context, raw []byte) (any, error) {
		var req CancelRequest
		if err := codec.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding cancel request: %w", err)
		}
		if req.Name == "" {
			return nil, fmt.Errorf("missing required field: name")
		}
		engine.Cancel(req.Name, req.URLs)
		return nil, nil
	})

	server.Handle("fonts/status", func(ctx context.Context, raw []byte) (any, error) {
		var req StatusRequest
		if err := codec.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding status request: %w", err)
		}
		response := StatusResponse{PollIntervalMS: pollInterval.Milliseconds()}
		if req.Name == "" {
			response.Batches = engine.ActiveBatches()
			return response, nil
		}
		files, ok := engine.Status(req.Name)
		if !ok {
			return nil, fmt.Errorf("unknown batch %q", req.Name)
		}
		response.Files = files
		return response, nil
	})

	server.Handle("fonts/delete", func(ctx context.Context, raw []byte) (any, error) {
		var req DeleteRequest
		if err := codec.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding delete request: %w", err)
		}
		if req.Family == "" {
			return nil, fmt.Errorf("missing required field: family")
		}
		if err := deleter.Delete(ctx, req.Family, req.Assets); err != nil {
			return nil, err
		}
		return nil, nil
	})
}
