package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/tagwall/internal/wall"
	"github.com/louisbranch/tagwall/internal/wall/assets"
	"github.com/louisbranch/tagwall/internal/wall/snapshot"
)

type stubItemStore struct {
	items   []wall.Item
	listErr error
}

func (s *stubItemStore) List(ctx context.Context) ([]wall.Item, error) {
	return s.items, s.listErr
}

func (s *stubItemStore) Append(ctx context.Context, draft wall.Draft) (wall.Item, error) {
	return wall.Item{}, nil
}

type stubSnapshotter struct {
	artifact snapshot.Artifact
	err      error
	calls    int
}

func (s *stubSnapshotter) Snapshot(ctx context.Context, items []wall.Item) (snapshot.Artifact, error) {
	s.calls++
	return s.artifact, s.err
}

func writeArtifactFile(t *testing.T, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.png")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write artifact file: %v", err)
	}
	return path
}

func TestHandleSnapshotServesPNGWithETag(t *testing.T) {
	contents := []byte("png-bytes")
	snapshots := &stubSnapshotter{artifact: snapshot.Artifact{
		Fingerprint: "18f-1",
		Path:        writeArtifactFile(t, contents),
		Width:       1000,
		Height:      800,
	}}
	h := newWallHTTP(&stubItemStore{}, snapshots, nil)

	req := httptest.NewRequest(http.MethodGet, "http://localhost/wall/snapshot", nil)
	rec := httptest.NewRecorder()
	h.handleSnapshot(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("ETag"); got != `"18f-1"` {
		t.Fatalf("expected fingerprint ETag, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}
	if rec.Body.String() != string(contents) {
		t.Fatalf("expected artifact bytes, got %q", rec.Body.String())
	}
}

func TestHandleSnapshotAnswersConditionalRequests(t *testing.T) {
	snapshots := &stubSnapshotter{artifact: snapshot.Artifact{
		Fingerprint: "18f-1",
		Path:        writeArtifactFile(t, []byte("png-bytes")),
	}}
	h := newWallHTTP(&stubItemStore{}, snapshots, nil)

	req := httptest.NewRequest(http.MethodGet, "http://localhost/wall/snapshot", nil)
	req.Header.Set("If-None-Match", `"18f-1"`)
	rec := httptest.NewRecorder()
	h.handleSnapshot(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304 for matching ETag, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body on 304, got %d bytes", rec.Body.Len())
	}
}

func TestHandleItemsServesJSONListing(t *testing.T) {
	items := []wall.Item{
		{
			ID:        "a",
			Kind:      wall.KindText,
			Position:  wall.Position{X: 10, Y: 20},
			Opacity:   1,
			CreatedAt: time.Unix(1700000000, 0).UTC(),
			Text:      "hello",
		},
	}
	h := newWallHTTP(&stubItemStore{items: items}, &stubSnapshotter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "http://localhost/wall/items", nil)
	rec := httptest.NewRecorder()
	h.handleItems(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Items []wall.Item `json:"items"`
		Count int         `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if payload.Count != 1 || len(payload.Items) != 1 || payload.Items[0].ID != "a" {
		t.Fatalf("unexpected listing %+v", payload)
	}
}

func TestHandleItemsServesEmptyArrayForBlankWall(t *testing.T) {
	h := newWallHTTP(&stubItemStore{}, &stubSnapshotter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "http://localhost/wall/items", nil)
	rec := httptest.NewRecorder()
	h.handleItems(rec, req)

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if string(payload["items"]) != "[]" {
		t.Fatalf("expected empty array, got %s", payload["items"])
	}
}

func TestHandleAssetConfinesResolution(t *testing.T) {
	root := t.TempDir()
	dir, err := assets.New(root)
	if err != nil {
		t.Fatalf("create asset dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sticker.png"), []byte("sticker"), 0o644); err != nil {
		t.Fatalf("write sticker: %v", err)
	}
	h := newWallHTTP(&stubItemStore{}, &stubSnapshotter{}, dir)

	req := httptest.NewRequest(http.MethodGet, "http://localhost/assets/sticker.png", nil)
	rec := httptest.NewRecorder()
	h.handleAsset(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for managed asset, got %d", rec.Code)
	}
	if rec.Body.String() != "sticker" {
		t.Fatalf("unexpected asset body %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "http://localhost/assets/../secret.txt", nil)
	rec = httptest.NewRecorder()
	h.handleAsset(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for traversal escape, got %d", rec.Code)
	}
}

// The render cache lives under the asset root but is not part of the public
// asset surface; its index database in particular must stay unreachable.
func TestHandleAssetHidesRenderCache(t *testing.T) {
	root := t.TempDir()
	dir, err := assets.New(root)
	if err != nil {
		t.Fatalf("create asset dir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "snapshots"), 0o755); err != nil {
		t.Fatalf("create snapshots dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "snapshots", "cache.db"), []byte("sqlite"), 0o644); err != nil {
		t.Fatalf("write cache db: %v", err)
	}
	h := newWallHTTP(&stubItemStore{}, &stubSnapshotter{}, dir)

	for _, target := range []string{
		"http://localhost/assets/snapshots/cache.db",
		"http://localhost/assets/snapshots/",
		"http://localhost/assets/foo/../snapshots/cache.db",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		h.handleAsset(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %s, got %d", target, rec.Code)
		}
	}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error without item store")
	}
}
