package assets

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// tinyPNG is a 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4, 0x89, 0x00, 0x00, 0x00,
	0x0D, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9C, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82,
}

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "assets"))
	if err != nil {
		t.Fatalf("new asset dir: %v", err)
	}
	return d
}

func TestSaveBlobDataURL(t *testing.T) {
	d := newTestDir(t)

	blob := "data:image/png;base64," + base64.StdEncoding.EncodeToString(tinyPNG)
	ref, err := d.SaveBlob(blob)
	if err != nil {
		t.Fatalf("save blob: %v", err)
	}
	if !strings.HasSuffix(ref, ".png") {
		t.Fatalf("expected .png extension, got %q", ref)
	}

	path, err := d.Resolve(ref)
	if err != nil {
		t.Fatalf("resolve saved blob: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved blob: %v", err)
	}
	if len(data) != len(tinyPNG) {
		t.Fatalf("expected %d bytes, got %d", len(tinyPNG), len(data))
	}
}

func TestSaveBlobBareBase64DefaultsExtension(t *testing.T) {
	d := newTestDir(t)

	ref, err := d.SaveBlob(base64.StdEncoding.EncodeToString(tinyPNG))
	if err != nil {
		t.Fatalf("save blob: %v", err)
	}
	if !strings.HasSuffix(ref, ".png") {
		t.Fatalf("expected default .png extension, got %q", ref)
	}
}

func TestSaveBlobJPEGExtension(t *testing.T) {
	d := newTestDir(t)

	blob := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("not-a-real-jpeg"))
	ref, err := d.SaveBlob(blob)
	if err != nil {
		t.Fatalf("save blob: %v", err)
	}
	if !strings.HasSuffix(ref, ".jpg") {
		t.Fatalf("expected .jpg extension, got %q", ref)
	}
}

func TestSaveBlobRejectsGarbage(t *testing.T) {
	d := newTestDir(t)

	if _, err := d.SaveBlob("data:image/png;base64,!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := d.SaveBlob("data:image/png,abc"); err == nil {
		t.Fatal("expected error for non-base64 data URL")
	}
	if _, err := d.SaveBlob("   "); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestResolveConfinesToRoot(t *testing.T) {
	d := newTestDir(t)

	if _, err := d.Resolve("../outside.png"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	if _, err := d.Resolve("a/../../outside.png"); err == nil {
		t.Fatal("expected nested traversal to be rejected")
	}

	path, err := d.Resolve("stickers/cat.png")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasPrefix(path, d.Root()) {
		t.Fatalf("resolved path %q not under root %q", path, d.Root())
	}
}

func TestFetcherDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(tinyPNG)
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	data, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(data) != len(tinyPNG) {
		t.Fatalf("expected %d bytes, got %d", len(tinyPNG), len(data))
	}
}

func TestFetcherTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher(50 * time.Millisecond)
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestFetcherRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404 response")
	}
}
