// Package store persists the append-only graffiti item sequence.
//
// The sequence lives in a single human-readable JSON document, one
// record per item. All mutations funnel through one mutex so a
// read-modify-write cycle can never lose a concurrent append, and every
// write lands via write-temp-then-rename so readers only ever observe a
// complete document.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/louisbranch/tagwall/internal/platform/id"
	"github.com/louisbranch/tagwall/internal/wall"
)

var tracer = otel.Tracer("github.com/louisbranch/tagwall/internal/wall/store")

// ErrCorruptStore marks persisted state that exists but cannot be
// decoded. A missing document is not corruption; it initializes an
// empty sequence.
var ErrCorruptStore = errors.New("corrupt wall store")

const fileMode = 0o644

// Store is a durable, ordered collection of graffiti items.
type Store struct {
	path string
	mu   sync.Mutex

	now   func() time.Time
	newID func() (string, error)
}

// Open prepares a store backed by the JSON document at path. The parent
// directory is created if needed; the document itself is created lazily
// on first append.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{
		path:  cleanPath,
		now:   time.Now,
		newID: id.NewID,
	}, nil
}

// List returns the full item sequence in rendering order: ascending
// CreatedAt, ties broken by persisted order. The returned slice is a
// copy; callers may not mutate stored state through it.
func (s *Store) List(ctx context.Context) ([]wall.Item, error) {
	ctx, span := tracer.Start(ctx, "store.List")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("wall.items", len(items)))
	return items, nil
}

// Append assigns an id and creation timestamp to the draft, durably
// persists the grown sequence, and returns the stored record. Appends
// are serialized: N concurrent calls always yield exactly N items.
func (s *Store) Append(ctx context.Context, draft wall.Draft) (wall.Item, error) {
	ctx, span := tracer.Start(ctx, "store.Append")
	defer span.End()
	span.SetAttributes(attribute.String("wall.item_kind", string(draft.Kind)))

	if err := ctx.Err(); err != nil {
		return wall.Item{}, err
	}
	if err := draft.Validate(); err != nil {
		span.RecordError(err)
		return wall.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return wall.Item{}, err
	}

	itemID, err := s.newID()
	if err != nil {
		return wall.Item{}, fmt.Errorf("assign item id: %w", err)
	}

	item := wall.Item{
		ID:         itemID,
		Kind:       draft.Kind,
		Position:   draft.Position,
		Rotation:   draft.Rotation,
		Opacity:    draft.Opacity,
		CreatedAt:  s.now().UTC(),
		Text:       draft.Text,
		Font:       draft.Font,
		Color:      draft.Color,
		Size:       draft.Size,
		Dimensions: draft.Dimensions,
		Source:     draft.Source,
	}

	items = append(items, item)
	if err := s.persist(items); err != nil {
		span.RecordError(err)
		return wall.Item{}, err
	}
	return item, nil
}

// load reads the document under the store mutex.
func (s *Store) load() ([]wall.Item, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorruptStore, s.path, err)
	}

	var items []wall.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptStore, s.path, err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// persist writes the full sequence to a sibling temp file, syncs it,
// and renames it into place so a crash mid-write cannot corrupt the
// previous document.
func (s *Store) persist(items []wall.Item) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode wall items: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".wall-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write wall items: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync wall items: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Chmod(tmpPath, fileMode); err != nil {
		return fmt.Errorf("chmod store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
