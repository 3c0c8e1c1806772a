package service

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/louisbranch/tagwall/internal/services/mcp/domain"
	"github.com/louisbranch/tagwall/internal/wall"
	"github.com/louisbranch/tagwall/internal/wall/assets"
	"github.com/louisbranch/tagwall/internal/wall/store"
)

// wallHTTP serves the wall's plain HTTP surface: the rendered snapshot, the
// JSON item listing, and confined static serving of uploaded stickers. It
// shares the transport's host validation but none of its session state.
type wallHTTP struct {
	store     domain.ItemStore
	snapshots domain.Snapshotter
	assets    *assets.Dir
}

func newWallHTTP(itemStore domain.ItemStore, snapshots domain.Snapshotter, assetDir *assets.Dir) *wallHTTP {
	return &wallHTTP{
		store:     itemStore,
		snapshots: snapshots,
		assets:    assetDir,
	}
}

type requestValidator func(*http.Request) error

func (h *wallHTTP) register(mux *http.ServeMux, validate requestValidator) {
	mux.HandleFunc("/wall/snapshot", h.guarded(validate, h.handleSnapshot))
	mux.HandleFunc("/wall/items", h.guarded(validate, h.handleItems))
	if h.assets != nil {
		mux.HandleFunc("/assets/", h.guarded(validate, h.handleAsset))
	}
}

func (h *wallHTTP) guarded(validate requestValidator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if validate != nil {
			if err := validate(r); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// handleSnapshot serves the current wall as a PNG. The artifact fingerprint
// doubles as the ETag, so unchanged walls answer conditional requests with
// 304 and no render work beyond the fingerprint computation.
func (h *wallHTTP) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	artifact, err := h.snapshots.Snapshot(r.Context(), items)
	if err != nil {
		log.Printf("Failed to render snapshot: %v", err)
		http.Error(w, "Failed to render snapshot", http.StatusInternalServerError)
		return
	}

	etag := `"` + artifact.Fingerprint + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, artifact.Path)
}

// handleItems serves the JSON listing the polling front-end reads.
func (h *wallHTTP) handleItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	payload := struct {
		Items []wall.Item `json:"items"`
		Count int         `json:"count"`
	}{Items: items, Count: len(items)}
	if payload.Items == nil {
		payload.Items = []wall.Item{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode item listing: %v", err)
	}
}

// handleAsset serves uploaded stickers from the managed asset directory.
// Resolution goes through the asset store so path traversal cannot escape
// the root.
func (h *wallHTTP) handleAsset(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimPrefix(r.URL.Path, "/assets/")
	ref = path.Clean(ref)
	if ref == "" || ref == "." {
		http.NotFound(w, r)
		return
	}
	// The render cache lives under the asset root; its contents (including
	// the index database) are reachable only through /wall/snapshot.
	if ref == "snapshots" || strings.HasPrefix(ref, "snapshots/") {
		http.NotFound(w, r)
		return
	}

	resolved, err := h.assets.Resolve(ref)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, resolved)
}

func (h *wallHTTP) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrCorruptStore) {
		log.Printf("Wall store is corrupt: %v", err)
		http.Error(w, "Wall store is corrupt", http.StatusInternalServerError)
		return
	}
	log.Printf("Failed to list wall items: %v", err)
	http.Error(w, "Failed to list wall items", http.StatusInternalServerError)
}
