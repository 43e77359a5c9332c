// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"

	"github.com/fontdepot/fontdepot/lib/clock"
	"github.com/fontdepot/fontdepot/lib/fontasset"
	"github.com/fontdepot/fontdepot/lib/testutil"
)

// fakeStore records the engine's store traffic.
type fakeStore struct {
	mu       sync.Mutex
	upserted []fontasset.Asset
	removed  []string
}

func (s *fakeStore) UpsertAll(ctx context.Context, assets []fontasset.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted = append(s.upserted, assets...)
	return nil
}

func (s *fakeStore) RemoveByPath(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, path)
	return 1, nil
}

func (s *fakeStore) removedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

func newTestEngine(t *testing.T, store Store, mutate func(*Config)) *Engine {
	t.Helper()
	if store == nil {
		store = &fakeStore{}
	}
	cfg := Config{
		Store:      store,
		InstallDir: filepath.Join(t.TempDir(), "install"),
		TempDir:    filepath.Join(t.TempDir(), "tmp"),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

func TestDownloadStreamsHashesAndInstalls(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "font/woff2")
		w.Write(payload)
	}))
	defer server.Close()

	store := &fakeStore{}
	engine := newTestEngine(t, store, nil)

	assets, err := engine.Download(context.Background(), "My Font", []string{server.URL + "/fonts/myfont"})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("len(assets) = %d, want 1", len(assets))
	}

	asset := assets[0]
	if asset.Format != fontasset.FormatWOFF2 {
		t.Errorf("Format = %q, want woff2 (inferred from Content-Type)", asset.Format)
	}
	if asset.Size != 1024 {
		t.Errorf("Size = %d, want 1024", asset.Size)
	}
	if asset.Family != "My Font" {
		t.Errorf("Family = %q, want the batch name", asset.Family)
	}

	hasher := blake3.New()
	hasher.Write(payload)
	if want := hex.EncodeToString(hasher.Sum(nil)); asset.ID != want {
		t.Errorf("ID = %s, want content hash %s", asset.ID, want)
	}

	installed, err := os.ReadFile(asset.Path)
	if err != nil {
		t.Fatalf("reading installed file: %v", err)
	}
	if !bytes.Equal(installed, payload) {
		t.Error("installed file does not match the served payload")
	}

	store.mu.Lock()
	persisted := len(store.upserted)
	store.mu.Unlock()
	if persisted != 1 {
		t.Errorf("store received %d assets, want 1", persisted)
	}
}

func TestDownloadReportsProgressAgainstContentLength(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "font/woff2")
		w.Header().Set("Content-Length", "1024")
		w.Write(payload)
	}))
	defer server.Close()

	clk := clock.Fake(time.Now())
	engine := newTestEngine(t, nil, func(cfg *Config) { cfg.Clock = clk })

	if _, err := engine.Download(context.Background(), "progress", []string{server.URL + "/f.woff2"}); err != nil {
		t.Fatalf("Download: %v", err)
	}

	// The batch has settled but retirement waits on the fake clock, so
	// the final state is still observable.
	statuses, ok := engine.Status("progress")
	if !ok {
		t.Fatal("settled batch retired before the grace period")
	}
	if len(statuses) != 1 {
		t.Fatalf("len(statuses) = %d, want 1", len(statuses))
	}
	got := statuses[0]
	if !got.Finished || got.Failed || got.Cancelled {
		t.Fatalf("status = %+v, want finished", got)
	}
	if got.Downloaded != 1024 || got.ContentLength != 1024 {
		t.Fatalf("downloaded/contentLength = %d/%d, want 1024/1024", got.Downloaded, got.ContentLength)
	}

	clk.Advance(2 * time.Second)
	testutil.Eventually(t, time.Second, 5*time.Millisecond, "batch retirement", func() bool {
		_, ok := engine.Status("progress")
		return !ok
	})
}

func TestDownloadUnknownTypeFailsAndLeavesNoTempFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("not a font"))
	}))
	defer server.Close()

	clk := clock.Fake(time.Now())
	var tempDir string
	engine := newTestEngine(t, nil, func(cfg *Config) {
		cfg.Clock = clk
		tempDir = cfg.TempDir
	})

	assets, err := engine.Download(context.Background(), "mystery", []string{server.URL + "/mystery"})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(assets) != 0 {
		t.Fatalf("len(assets) = %d, want 0", len(assets))
	}

	statuses, ok := engine.Status("mystery")
	if !ok || len(statuses) != 1 {
		t.Fatalf("Status = %v, %v", statuses, ok)
	}
	if !statuses[0].Failed {
		t.Fatalf("status = %+v, want failed", statuses[0])
	}

	entries, err := os.ReadDir(filepath.Join(tempDir, "mystery"))
	if err != nil {
		t.Fatalf("reading batch temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir not empty after failure: %v", entries)
	}
}

func TestCancelMidTransfer(t *testing.T) {
	release := make(chan struct{})
	served := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "font/woff2")
		w.Write(bytes.Repeat([]byte{0x02}, transferChunkSize))
		w.(http.Flusher).Flush()
		close(served)
		<-release
	}))
	defer server.Close()
	defer close(release)

	clk := clock.Fake(time.Now())
	var tempDir string
	engine := newTestEngine(t, nil, func(cfg *Config) {
		cfg.Clock = clk
		tempDir = cfg.TempDir
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Download(context.Background(), "slow", []string{server.URL + "/slow.woff2"})
	}()

	testutil.RequireClosed(t, served, 5*time.Second, "first chunk served")
	testutil.Eventually(t, 5*time.Second, 5*time.Millisecond, "progress observed", func() bool {
		statuses, ok := engine.Status("slow")
		return ok && len(statuses) == 1 && statuses[0].Downloaded > 0
	})

	engine.Cancel("slow", nil)
	testutil.RequireClosed(t, done, 5*time.Second, "batch settling after cancel")

	// A fully cancelled batch retires immediately.
	if _, ok := engine.Status("slow"); ok {
		t.Fatal("fully cancelled batch still in active set")
	}

	entries, err := os.ReadDir(filepath.Join(tempDir, "slow"))
	if err != nil {
		t.Fatalf("reading batch temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("partial file survived cancellation: %v", entries)
	}
}

func TestCancelSingleURLLeavesSiblingsAlone(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "font/woff2")
		if strings.HasSuffix(r.URL.Path, "slow.woff2") {
			w.Write(bytes.Repeat([]byte{0x03}, transferChunkSize))
			w.(http.Flusher).Flush()
			<-release
			return
		}
		w.Write([]byte("quick font"))
	}))
	defer server.Close()
	defer close(release)

	clk := clock.Fake(time.Now())
	engine := newTestEngine(t, nil, func(cfg *Config) { cfg.Clock = clk })

	slowURL := server.URL + "/slow.woff2"
	quickURL := server.URL + "/quick.woff2"

	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Download(context.Background(), "mixed", []string{slowURL, quickURL})
	}()

	testutil.Eventually(t, 5*time.Second, 5*time.Millisecond, "slow transfer in flight", func() bool {
		statuses, ok := engine.Status("mixed")
		if !ok {
			return false
		}
		for _, s := range statuses {
			if s.URL == slowURL && s.Downloaded > 0 {
				return true
			}
		}
		return false
	})

	engine.Cancel("mixed", []string{slowURL})
	testutil.RequireClosed(t, done, 5*time.Second, "batch settling")

	statuses, ok := engine.Status("mixed")
	if !ok {
		t.Fatal("partially cancelled batch retired early")
	}
	for _, s := range statuses {
		switch s.URL {
		case slowURL:
			if !s.Cancelled {
				t.Errorf("slow file: %+v, want cancelled", s)
			}
		case quickURL:
			if !s.Finished {
				t.Errorf("quick file: %+v, want finished", s)
			}
		}
	}
}

func TestDownloadOverwriteRemovesStoreRow(t *testing.T) {
	content := []byte("second version of the font")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "font/ttf")
		w.Write(content)
	}))
	defer server.Close()

	store := &fakeStore{}
	engine := newTestEngine(t, store, nil)

	url := server.URL + "/shared.ttf"
	if _, err := engine.Download(context.Background(), "first", []string{url}); err != nil {
		t.Fatalf("first Download: %v", err)
	}
	assets, err := engine.Download(context.Background(), "second", []string{url})
	if err != nil {
		t.Fatalf("second Download: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("len(assets) = %d, want 1", len(assets))
	}

	removed := store.removedPaths()
	if len(removed) != 1 || removed[0] != assets[0].Path {
		t.Fatalf("removed paths = %v, want the overwritten install path %s", removed, assets[0].Path)
	}
}

func TestDuplicateBatchNameRejected(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "font/woff2")
		w.Write([]byte{0x04})
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	engine := newTestEngine(t, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Download(context.Background(), "dup", []string{server.URL + "/a.woff2"})
	}()

	testutil.Eventually(t, 5*time.Second, 5*time.Millisecond, "first batch active", func() bool {
		_, ok := engine.Status("dup")
		return ok
	})

	if _, err := engine.Download(context.Background(), "dup", []string{server.URL + "/b.woff2"}); err == nil {
		t.Fatal("duplicate batch name accepted")
	}

	engine.Cancel("dup", nil)
	testutil.RequireClosed(t, done, 5*time.Second, "first batch settling")
}

func TestGzipEncodedResponse(t *testing.T) {
	payload := bytes.Repeat([]byte("font bytes "), 200)
	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	gz.Write(payload)
	gz.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			t.Error("request did not offer gzip")
		}
		w.Header().Set("Content-Type", "font/woff2")
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Length", fmt.Sprint(compressed.Len()))
		w.Write(compressed.Bytes())
	}))
	defer server.Close()

	clk := clock.Fake(time.Now())
	engine := newTestEngine(t, nil, func(cfg *Config) { cfg.Clock = clk })
	assets, err := engine.Download(context.Background(), "gzipped", []string{server.URL + "/g.woff2"})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("len(assets) = %d, want 1", len(assets))
	}
	if assets[0].Size != uint64(len(payload)) {
		t.Errorf("Size = %d, want decoded length %d", assets[0].Size, len(payload))
	}

	installed, err := os.ReadFile(assets[0].Path)
	if err != nil {
		t.Fatalf("reading installed file: %v", err)
	}
	if !bytes.Equal(installed, payload) {
		t.Error("installed file is not the decoded payload")
	}

	// The compressed Content-Length is not comparable with the
	// decompressed progress counter, so it must not be advertised.
	statuses, ok := engine.Status("gzipped")
	if !ok || len(statuses) != 1 {
		t.Fatalf("Status = %v, %v", statuses, ok)
	}
	if statuses[0].ContentLength != 0 {
		t.Errorf("ContentLength = %d, want 0 for a gzip response", statuses[0].ContentLength)
	}
	if statuses[0].Downloaded != uint64(len(payload)) {
		t.Errorf("Downloaded = %d, want %d", statuses[0].Downloaded, len(payload))
	}
}

func TestDownloadAssetsCarriesDescriptors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "font/woff2")
		w.Write([]byte("bold font bytes"))
	}))
	defer server.Close()

	store := &fakeStore{}
	engine := newTestEngine(t, store, nil)

	assets, err := engine.DownloadAssets(context.Background(), "Inter", []fontasset.Asset{{
		Path:        server.URL + "/inter-bold.woff2",
		Descriptors: map[string]string{"weight": "700", "style": "normal"},
	}})
	if err != nil {
		t.Fatalf("DownloadAssets: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("len(assets) = %d, want 1", len(assets))
	}
	if assets[0].Descriptors["weight"] != "700" || assets[0].Descriptors["style"] != "normal" {
		t.Fatalf("Descriptors = %v, want the request's descriptors on the produced asset", assets[0].Descriptors)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.upserted) != 1 || store.upserted[0].Descriptors["weight"] != "700" {
		t.Fatalf("upserted = %+v, want descriptors persisted", store.upserted)
	}
}

func TestSameBasenameInOneBatch(t *testing.T) {
	payloadA := bytes.Repeat([]byte{0x0A}, 2048)
	payloadB := bytes.Repeat([]byte{0x0B}, 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "font/woff2")
		if strings.HasPrefix(r.URL.Path, "/a/") {
			w.Write(payloadA)
			return
		}
		w.Write(payloadB)
	}))
	defer server.Close()

	clk := clock.Fake(time.Now())
	var tempDir, installDir string
	engine := newTestEngine(t, nil, func(cfg *Config) {
		cfg.Clock = clk
		tempDir = cfg.TempDir
		installDir = cfg.InstallDir
	})

	assets, err := engine.Download(context.Background(), "twins", []string{
		server.URL + "/a/font.woff2",
		server.URL + "/b/font.woff2",
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("len(assets) = %d, want both files to settle", len(assets))
	}

	statuses, ok := engine.Status("twins")
	if !ok {
		t.Fatal("batch retired early")
	}
	for _, s := range statuses {
		if !s.Finished {
			t.Errorf("status = %+v, want finished", s)
		}
	}

	// No temp leftovers, and the shared final name holds exactly one
	// intact payload (last writer wins).
	entries, err := os.ReadDir(filepath.Join(tempDir, "twins"))
	if err != nil {
		t.Fatalf("reading batch temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp leftovers: %v", entries)
	}
	installed, err := os.ReadFile(filepath.Join(installDir, "font.woff2"))
	if err != nil {
		t.Fatalf("reading installed file: %v", err)
	}
	if !bytes.Equal(installed, payloadA) && !bytes.Equal(installed, payloadB) {
		t.Fatalf("installed file is %d bytes, matching neither payload", len(installed))
	}
}

func TestGoogleCSSURLResolvesInline(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	url := "https://fonts.googleapis.com/css2?family=Roboto:wght@400&display=swap"
	assets, err := engine.Download(context.Background(), "google", []string{url})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("len(assets) = %d, want 1", len(assets))
	}
	if assets[0].Format != fontasset.FormatGoogle {
		t.Errorf("Format = %q, want google", assets[0].Format)
	}
	if assets[0].Family != "Roboto" {
		t.Errorf("Family = %q, want Roboto (not the batch name)", assets[0].Family)
	}
}

func TestManifestURLDispatchesToHandler(t *testing.T) {
	var (
		mu     sync.Mutex
		seen   []string
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{}"))
		}))
	)
	defer server.Close()

	clk := clock.Fake(time.Now())
	engine := newTestEngine(t, nil, func(cfg *Config) {
		cfg.Clock = clk
		cfg.ManifestHandler = func(ctx context.Context, url string) error {
			mu.Lock()
			seen = append(seen, url)
			mu.Unlock()
			return nil
		}
	})

	url := server.URL + "/manifests/fonts.json"
	assets, err := engine.Download(context.Background(), "manifest-batch", []string{url})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(assets) != 0 {
		t.Fatalf("manifest dispatch produced assets: %v", assets)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != url {
		t.Fatalf("handler saw %v, want [%s]", seen, url)
	}

	statuses, ok := engine.Status("manifest-batch")
	if !ok || len(statuses) != 1 || !statuses[0].Finished {
		t.Fatalf("Status = %v, %v, want a finished file", statuses, ok)
	}
}

func TestCancelUnknownBatchIsNoop(t *testing.T) {
	engine := newTestEngine(t, nil, nil)
	engine.Cancel("never-existed", nil)
	if _, ok := engine.Status("never-existed"); ok {
		t.Fatal("unknown batch reported as active")
	}
}
