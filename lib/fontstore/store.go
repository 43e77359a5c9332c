// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package fontstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/fontdepot/fontdepot/lib/codec"
	"github.com/fontdepot/fontdepot/lib/fontasset"
)

// schema is the asset table. id is the asset identity; upserts replace
// the whole row (update-in-place, never duplicate).
const schema = `
CREATE TABLE IF NOT EXISTS fonts (
	id               TEXT PRIMARY KEY,
	family           TEXT NOT NULL,
	format           TEXT NOT NULL,
	file_name        TEXT NOT NULL DEFAULT '',
	size             INTEGER NOT NULL DEFAULT 0,
	path             TEXT NOT NULL,
	source_tag       TEXT NOT NULL DEFAULT '',
	style            TEXT NOT NULL DEFAULT '',
	weight           TEXT NOT NULL DEFAULT '',
	stretch          TEXT NOT NULL DEFAULT '',
	unicode_range    TEXT NOT NULL DEFAULT '',
	display          TEXT NOT NULL DEFAULT '',
	variant          TEXT NOT NULL DEFAULT '',
	feature_settings TEXT NOT NULL DEFAULT '',
	descriptors      BLOB
);
CREATE INDEX IF NOT EXISTS fonts_by_family ON fonts(family);
CREATE INDEX IF NOT EXISTS fonts_by_format ON fonts(format);
CREATE INDEX IF NOT EXISTS fonts_by_path ON fonts(path);
`

// flattenedDescriptors maps descriptor keys to their dedicated
// columns. Keys outside this set travel in the CBOR blob.
var flattenedDescriptors = map[string]string{
	"style":           "style",
	"weight":          "weight",
	"stretch":         "stretch",
	"unicodeRange":    "unicode_range",
	"display":         "display",
	"variant":         "variant",
	"featureSettings": "feature_settings",
}

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file. The parent directory must
	// exist. ":memory:" gives an in-memory database (PoolSize must
	// be 1: in-memory connections are independent).
	Path string

	// PoolSize is the number of pooled connections. Defaults to 4.
	PoolSize int

	// Logger receives operational messages. Nil means a no-op logger.
	Logger *slog.Logger
}

// Store is the SQLite-backed asset table. Safe for concurrent use;
// SQLite serializes its own writes.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates or opens the store at cfg.Path, applying standard
// pragmas and the schema to every pooled connection.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("fontstore: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("fontstore: opening %s: %w", cfg.Path, err)
	}

	logger.Info("font store opened", "path", cfg.Path, "pool_size", poolSize)
	return &Store{pool: pool, logger: logger, path: cfg.Path}, nil
}

// Close closes the pool. Blocks until all borrowed connections return.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("fontstore: closing %s: %w", s.path, err)
	}
	return nil
}

// prepareConnection applies pragmas and the schema. Runs once per
// pooled connection on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("fontstore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("fontstore: creating schema: %w", err)
	}
	return nil
}

// Upsert writes one asset, replacing any existing row with the same ID.
func (s *Store) Upsert(ctx context.Context, asset fontasset.Asset) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("fontstore: upsert: %w", err)
	}
	defer s.pool.Put(conn)

	return s.upsertOne(conn, asset)
}

// UpsertAll writes every asset in one IMMEDIATE transaction: either
// all rows land or none do.
func (s *Store) UpsertAll(ctx context.Context, assets []fontasset.Asset) (err error) {
	if len(assets) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("fontstore: upsert all: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("fontstore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, asset := range assets {
		if err = s.upsertOne(conn, asset); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertOne(conn *sqlite.Conn, asset fontasset.Asset) error {
	if asset.ID == "" {
		return fmt.Errorf("fontstore: asset has empty id (family %q, path %q)", asset.Family, asset.Path)
	}

	flattened, blob, err := splitDescriptors(asset.Descriptors)
	if err != nil {
		return fmt.Errorf("fontstore: encoding descriptors for %s: %w", asset.ID, err)
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO fonts (id, family, format, file_name, size, path, source_tag,
			style, weight, stretch, unicode_range, display, variant, feature_settings, descriptors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			family = excluded.family,
			format = excluded.format,
			file_name = excluded.file_name,
			size = excluded.size,
			path = excluded.path,
			source_tag = excluded.source_tag,
			style = excluded.style,
			weight = excluded.weight,
			stretch = excluded.stretch,
			unicode_range = excluded.unicode_range,
			display = excluded.display,
			variant = excluded.variant,
			feature_settings = excluded.feature_settings,
			descriptors = excluded.descriptors`,
		&sqlitex.ExecOptions{
			Args: []any{
				asset.ID, asset.Family, string(asset.Format), asset.FileName,
				int64(asset.Size), asset.Path, asset.SourceTag,
				flattened["style"], flattened["weight"], flattened["stretch"],
				flattened["unicode_range"], flattened["display"], flattened["variant"],
				flattened["feature_settings"], blob,
			},
		})
	if err != nil {
		return fmt.Errorf("fontstore: upserting %s: %w", asset.ID, err)
	}
	return nil
}

// QueryByFamilies returns assets whose family is in families, or every
// asset when families is empty. Rows come back in family, then
// file-name order.
func (s *Store) QueryByFamilies(ctx context.Context, families []string) ([]fontasset.Asset, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("fontstore: query: %w", err)
	}
	defer s.pool.Put(conn)

	query := "SELECT id, family, format, file_name, size, path, source_tag, " +
		"style, weight, stretch, unicode_range, display, variant, feature_settings, descriptors " +
		"FROM fonts"

	var args []any
	if len(families) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(families)), ", ")
		query += " WHERE family IN (" + placeholders + ")"
		for _, family := range families {
			args = append(args, family)
		}
	}
	query += " ORDER BY family, file_name"

	var assets []fontasset.Asset
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			asset, err := scanAsset(stmt)
			if err != nil {
				return err
			}
			assets = append(assets, asset)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fontstore: querying families: %w", err)
	}
	return assets, nil
}

// ListByFormat returns every asset with the given format. The startup
// pass uses this to find persisted manifest rows to re-resolve.
func (s *Store) ListByFormat(ctx context.Context, format fontasset.Format) ([]fontasset.Asset, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("fontstore: list by format: %w", err)
	}
	defer s.pool.Put(conn)

	var assets []fontasset.Asset
	err = sqlitex.Execute(conn,
		"SELECT id, family, format, file_name, size, path, source_tag, "+
			"style, weight, stretch, unicode_range, display, variant, feature_settings, descriptors "+
			"FROM fonts WHERE format = ? ORDER BY family, file_name",
		&sqlitex.ExecOptions{
			Args: []any{string(format)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				asset, err := scanAsset(stmt)
				if err != nil {
					return err
				}
				assets = append(assets, asset)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("fontstore: listing format %s: %w", format, err)
	}
	return assets, nil
}

// RemoveByID deletes the row with the given ID. Removing an absent ID
// is not an error.
func (s *Store) RemoveByID(ctx context.Context, id string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("fontstore: remove: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM fonts WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
	})
	if err != nil {
		return fmt.Errorf("fontstore: removing %s: %w", id, err)
	}
	return nil
}

// RemoveByPath deletes every row whose path matches. The download
// engine calls this before overwriting an installed file so the
// replaced file leaves no orphaned row behind (last-writer-wins).
// Returns the number of rows removed.
func (s *Store) RemoveByPath(ctx context.Context, path string) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("fontstore: remove by path: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM fonts WHERE path = ?", &sqlitex.ExecOptions{
		Args: []any{path},
	})
	if err != nil {
		return 0, fmt.Errorf("fontstore: removing path %s: %w", path, err)
	}
	return conn.Changes(), nil
}

// splitDescriptors divides a descriptor map into the flattened column
// values and a CBOR blob of the remainder. The blob is nil when no
// extra keys exist.
func splitDescriptors(descriptors map[string]string) (map[string]string, []byte, error) {
	flattened := map[string]string{
		"style": "", "weight": "", "stretch": "", "unicode_range": "",
		"display": "", "variant": "", "feature_settings": "",
	}

	var extra map[string]string
	for key, value := range descriptors {
		if column, ok := flattenedDescriptors[key]; ok {
			flattened[column] = value
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[key] = value
	}

	if extra == nil {
		return flattened, nil, nil
	}
	blob, err := codec.Marshal(extra)
	if err != nil {
		return nil, nil, err
	}
	return flattened, blob, nil
}

// scanAsset reconstructs an asset from a query row. Column order
// matches the SELECT lists above.
func scanAsset(stmt *sqlite.Stmt) (fontasset.Asset, error) {
	asset := fontasset.Asset{
		ID:        stmt.ColumnText(0),
		Family:    stmt.ColumnText(1),
		Format:    fontasset.Format(stmt.ColumnText(2)),
		FileName:  stmt.ColumnText(3),
		Size:      uint64(stmt.ColumnInt64(4)),
		Path:      stmt.ColumnText(5),
		SourceTag: stmt.ColumnText(6),
	}

	descriptors := make(map[string]string)
	columns := []struct {
		index int
		key   string
	}{
		{7, "style"}, {8, "weight"}, {9, "stretch"}, {10, "unicodeRange"},
		{11, "display"}, {12, "variant"}, {13, "featureSettings"},
	}
	for _, column := range columns {
		if value := stmt.ColumnText(column.index); value != "" {
			descriptors[column.key] = value
		}
	}

	if stmt.ColumnLen(14) > 0 {
		blob := make([]byte, stmt.ColumnLen(14))
		stmt.ColumnBytes(14, blob)
		var extra map[string]string
		if err := codec.Unmarshal(blob, &extra); err != nil {
			return asset, fmt.Errorf("decoding descriptor blob for %s: %w", asset.ID, err)
		}
		for key, value := range extra {
			descriptors[key] = value
		}
	}

	if len(descriptors) > 0 {
		asset.Descriptors = descriptors
	}
	return asset, nil
}
