// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

// fontdepotd is the FontDepot daemon: it owns the font catalog, the
// download engine, and the console socket the admin UI speaks to.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/fontdepot/fontdepot/lib/config"
	"github.com/fontdepot/fontdepot/lib/console"
	"github.com/fontdepot/fontdepot/lib/download"
	"github.com/fontdepot/fontdepot/lib/fontstore"
	"github.com/fontdepot/fontdepot/lib/manifest"
	"github.com/fontdepot/fontdepot/lib/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fontdepotd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		debug      bool
	)
	pflag.StringVar(&configPath, "config", "", "path to fontdepot.yaml (overrides FONTDEPOT_CONFIG)")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := fontstore.Open(fontstore.Config{
		Path:     cfg.Store.Database,
		PoolSize: cfg.Store.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	catalog, err := registry.New(registry.Config{
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	// The engine and the resolver reference each other: the engine
	// hands manifest URLs found inside batches back to the resolver
	// (in materialize mode, since the caller asked for a download),
	// and the resolver hands remote sources to the engine.
	var resolver *manifest.Resolver
	engine, err := download.New(download.Config{
		Store:             store,
		InstallDir:        cfg.Paths.Fonts,
		TempDir:           cfg.Paths.Temp,
		Logger:            logger,
		Concurrency:       cfg.Download.Concurrency,
		RetirementGrace:   cfg.Download.Grace(),
		RenameAttempts:    cfg.Download.RenameAttempts,
		RenameBackoff:     cfg.Download.Backoff(),
		RequestsPerSecond: cfg.Download.RequestsPerSecond,
		ManifestHandler: func(ctx context.Context, url string) error {
			return resolver.Resolve(ctx, "download", []string{url}, true)
		},
	})
	if err != nil {
		return err
	}

	resolver, err = manifest.New(manifest.Config{
		Registrar:  catalog,
		Downloader: engine,
		Store:      store,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	catalog.SetManifestResolver(resolver)

	// Repopulate derived state from manifests registered in previous
	// runs. The store is the source of truth across restarts.
	if err := catalog.ResolvePersistedManifests(ctx); err != nil {
		logger.Warn("re-resolving persisted manifests", "error", err)
	}

	server := console.NewServer(cfg.Console.SocketPath, logger)
	console.RegisterFontHandlers(server, engine, catalog, cfg.Console.Interval())

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	logger.Info("fontdepot daemon running",
		"socket", cfg.Console.SocketPath,
		"fonts", cfg.Paths.Fonts,
		"database", cfg.Store.Database,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-serveDone; err != nil {
		logger.Error("console server error", "error", err)
	}
	return nil
}
