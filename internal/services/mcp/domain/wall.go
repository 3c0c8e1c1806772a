package domain

import (
	"context"

	"github.com/louisbranch/tagwall/internal/wall"
	"github.com/louisbranch/tagwall/internal/wall/snapshot"
)

// Tool parameter defaults from the spray_text contract.
const (
	DefaultFont     = "Impact, sans-serif"
	DefaultColor    = "#111111"
	DefaultTextSize = 42.0
)

// ItemStore is the ordered graffiti store the tool layer appends to and
// lists from. It owns its own concurrency safety.
type ItemStore interface {
	List(ctx context.Context) ([]wall.Item, error)
	Append(ctx context.Context, draft wall.Draft) (wall.Item, error)
}

// Snapshotter renders (or returns the cached) composite for a state.
type Snapshotter interface {
	Snapshot(ctx context.Context, items []wall.Item) (snapshot.Artifact, error)
}

// BlobStore persists uploaded image payloads into the managed asset
// directory, returning an asset-relative reference.
type BlobStore interface {
	SaveBlob(blob string) (string, error)
}

// PointInput is a canvas position in percent of width/height.
type PointInput struct {
	X float64 `json:"x" jsonschema:"horizontal position in percent of canvas width, 0-100"`
	Y float64 `json:"y" jsonschema:"vertical position in percent of canvas height, 0-100"`
}

// BoxInput is an image box in percent of canvas width/height.
type BoxInput struct {
	Width  float64 `json:"width" jsonschema:"width in percent of canvas width, 0-100"`
	Height float64 `json:"height" jsonschema:"height in percent of canvas height, 0-100"`
}

// SprayTextInput represents the MCP tool input for spraying a text tag.
type SprayTextInput struct {
	Text     string     `json:"text" jsonschema:"tag text, may contain line breaks"`
	Font     string     `json:"font,omitempty" jsonschema:"font descriptor (default Impact, sans-serif)"`
	Color    string     `json:"color,omitempty" jsonschema:"hex color (default #111111)"`
	Position PointInput `json:"position" jsonschema:"canvas position; pairs with both components below 1 are read as fractions and scaled to percent"`
	Size     *float64   `json:"size,omitempty" jsonschema:"text size in pixels, 8-300 (default 42)"`
	Rotation *float64   `json:"rotation,omitempty" jsonschema:"rotation in degrees, -360 to 360 (default 0)"`
	Opacity  *float64   `json:"opacity,omitempty" jsonschema:"opacity, 0-1 (default 1)"`
}

// SprayTextResult represents the MCP tool output for spraying a text tag.
type SprayTextResult struct {
	ID string `json:"id" jsonschema:"created item identifier"`
}

// SprayImageInput represents the MCP tool input for spraying a sticker.
// Exactly one of image_url and image_blob is required.
type SprayImageInput struct {
	ImageURL   string     `json:"image_url,omitempty" jsonschema:"HTTP(S) URL of the image"`
	ImageBlob  string     `json:"image_blob,omitempty" jsonschema:"base64 or data-URL image payload"`
	Position   PointInput `json:"position" jsonschema:"canvas position; pairs with both components below 1 are read as fractions and scaled to percent"`
	Dimensions BoxInput   `json:"dimensions" jsonschema:"target box; pairs with both components below 1 are read as fractions and scaled to percent"`
	Rotation   *float64   `json:"rotation,omitempty" jsonschema:"rotation in degrees, -360 to 360 (default 0)"`
	Opacity    *float64   `json:"opacity,omitempty" jsonschema:"opacity, 0-1 (default 1)"`
}

// SprayImageResult represents the MCP tool output for spraying a sticker.
type SprayImageResult struct {
	ID string `json:"id" jsonschema:"created item identifier"`
}

// WallListInput represents the MCP tool input for listing the wall.
type WallListInput struct{}

// WallItemEntry is one wall item in a listing payload.
type WallItemEntry struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Position  PointInput `json:"position"`
	Rotation  float64    `json:"rotation"`
	Opacity   float64    `json:"opacity"`
	CreatedAt string     `json:"created_at"`
	Text      string     `json:"text,omitempty"`
	Font      string     `json:"font,omitempty"`
	Color     string     `json:"color,omitempty"`
	Size      float64    `json:"size,omitempty"`
	Width     float64    `json:"width,omitempty"`
	Height    float64    `json:"height,omitempty"`
	Source    string     `json:"source,omitempty"`
}

// WallListResult represents the MCP tool output for listing the wall.
type WallListResult struct {
	Items []WallItemEntry `json:"items"`
	Count int             `json:"count" jsonschema:"number of items on the wall"`
}

// WallListPayload represents the MCP resource payload for the wall listing.
type WallListPayload struct {
	Items []WallItemEntry `json:"items"`
}

// WallSnapshotInput represents the MCP tool input for forcing a render.
type WallSnapshotInput struct{}

// WallSnapshotResult represents the MCP tool output for a render pass.
type WallSnapshotResult struct {
	Fingerprint   string `json:"fingerprint" jsonschema:"deterministic digest of the rendered state"`
	Width         int    `json:"width" jsonschema:"snapshot width in pixels"`
	Height        int    `json:"height" jsonschema:"snapshot height in pixels"`
	ItemCount     int    `json:"item_count" jsonschema:"number of items composited"`
	SkippedImages int    `json:"skipped_images" jsonschema:"number of image items skipped due to unresolvable sources"`
}

func wallItemEntry(item wall.Item) WallItemEntry {
	entry := WallItemEntry{
		ID:        item.ID,
		Kind:      string(item.Kind),
		Position:  PointInput{X: item.Position.X, Y: item.Position.Y},
		Rotation:  item.Rotation,
		Opacity:   item.Opacity,
		CreatedAt: item.CreatedAt.Format(timestampLayout),
		Text:      item.Text,
		Font:      item.Font,
		Color:     item.Color,
		Size:      item.Size,
		Source:    item.Source,
	}
	if item.Dimensions != nil {
		entry.Width = item.Dimensions.Width
		entry.Height = item.Dimensions.Height
	}
	return entry
}
