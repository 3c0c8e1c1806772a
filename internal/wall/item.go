// Package wall defines the graffiti item model shared by storage,
// rendering, and the tool layer.
package wall

import (
	"time"
)

// Kind discriminates the two graffiti item variants.
type Kind string

const (
	// KindText is a styled text tag.
	KindText Kind = "text"
	// KindImage is an image sticker.
	KindImage Kind = "image"
)

// Position locates an item on the canvas as percentages of its
// width and height, each in [0,100].
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dimensions sizes an image item as percentages of the canvas width and
// height, each in [0,100].
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Item is one graffiti entry. The Kind field selects which variant
// fields are meaningful: Text/Font/Color/Size for text tags,
// Dimensions/Source for image stickers. Items are immutable after append.
type Item struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Position  Position  `json:"position"`
	Rotation  float64   `json:"rotation"`
	Opacity   float64   `json:"opacity"`
	CreatedAt time.Time `json:"created_at"`

	// Text variant.
	Text  string  `json:"text,omitempty"`
	Font  string  `json:"font,omitempty"`
	Color string  `json:"color,omitempty"`
	Size  float64 `json:"size,omitempty"`

	// Image variant. Source is a remote URL, a data URL, or a path
	// relative to the managed asset directory.
	Dimensions *Dimensions `json:"dimensions,omitempty"`
	Source     string      `json:"source,omitempty"`
}

// Draft carries the caller-supplied fields of an item before the store
// assigns its identity and creation timestamp.
type Draft struct {
	Kind     Kind
	Position Position
	Rotation float64
	Opacity  float64

	Text  string
	Font  string
	Color string
	Size  float64

	Dimensions *Dimensions
	Source     string
}
