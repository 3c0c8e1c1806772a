// Package snapshot renders the current wall state onto the background
// image and caches the resulting raster by a deterministic fingerprint
// of that state.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"strings"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/louisbranch/tagwall/internal/wall"
	"github.com/louisbranch/tagwall/internal/wall/assets"
)

// ErrConfiguration marks a missing, unreadable, or undecodable
// background asset. It is fatal to the render call and requires
// operator intervention; it is never retried automatically.
var ErrConfiguration = errors.New("snapshot configuration error")

// Render is the output of one composite pass: the encoded raster plus
// the metadata recorded alongside it in the cache.
type Render struct {
	PNG           []byte
	Width         int
	Height        int
	ItemCount     int
	SkippedImages int
}

// Compositor renders wall items over a fixed background. Rendering is a
// pure function of the item sequence; per-item source failures degrade
// to skips rather than aborting the composite.
type Compositor struct {
	backgroundPath string
	assets         *assets.Dir
	fetcher        *assets.Fetcher
	fonts          *fontCache
}

// NewCompositor builds a compositor for the given background image path.
func NewCompositor(backgroundPath string, dir *assets.Dir, fetcher *assets.Fetcher) *Compositor {
	return &Compositor{
		backgroundPath: backgroundPath,
		assets:         dir,
		fetcher:        fetcher,
		fonts:          newFontCache(),
	}
}

// RenderItems composites every item over the background in ascending
// creation order, which defines z-order: later posts draw over earlier
// ones. Items whose image source cannot be resolved or decoded are
// skipped and counted.
func (c *Compositor) RenderItems(ctx context.Context, items []wall.Item) (Render, error) {
	bg, err := c.loadBackground()
	if err != nil {
		return Render{}, err
	}

	bounds := bg.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	dc := gg.NewContextForImage(bg)

	skipped := 0
	for _, item := range items {
		switch item.Kind {
		case wall.KindText:
			if err := c.drawText(dc, item, width, height); err != nil {
				return Render{}, err
			}
		case wall.KindImage:
			if err := c.drawImage(ctx, dc, item, width, height); err != nil {
				log.Printf("skipping item %s: %v", item.ID, err)
				skipped++
			}
		default:
			// Unknown kinds in persisted state are treated like
			// unresolvable sources: skipped, not fatal.
			log.Printf("skipping item %s: unknown kind %q", item.ID, item.Kind)
			skipped++
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return Render{}, fmt.Errorf("encode snapshot: %w", err)
	}

	return Render{
		PNG:           buf.Bytes(),
		Width:         width,
		Height:        height,
		ItemCount:     len(items),
		SkippedImages: skipped,
	}, nil
}

func (c *Compositor) loadBackground() (image.Image, error) {
	f, err := os.Open(c.backgroundPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open background %s: %v", ErrConfiguration, c.backgroundPath, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode background %s: %v", ErrConfiguration, c.backgroundPath, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: background %s has no pixel dimensions", ErrConfiguration, c.backgroundPath)
	}
	return img, nil
}

// drawText renders a tag as vector text centered at its position, with
// multi-line content vertically centered as a block around that point.
func (c *Compositor) drawText(dc *gg.Context, item wall.Item, width, height int) error {
	face, err := c.fonts.face(item.Font, item.Size)
	if err != nil {
		return fmt.Errorf("item %s: %w", item.ID, err)
	}

	x := item.Position.X / 100 * float64(width)
	y := item.Position.Y / 100 * float64(height)

	dc.Push()
	defer dc.Pop()

	dc.RotateAbout(gg.Radians(item.Rotation), x, y)
	dc.SetFontFace(face)
	dc.SetColor(parseHexColor(item.Color, item.Opacity))

	lines := strings.Split(item.Text, "\n")
	lineHeight := item.Size * 1.2
	startY := y - float64(len(lines)-1)/2*lineHeight
	for i, line := range lines {
		dc.DrawStringAnchored(line, x, startY+float64(i)*lineHeight, 0.5, 0.5)
	}
	return nil
}

// drawImage resolves, fits, rotates, fades, and composites one sticker.
// Any failure to obtain or decode the source is returned to the caller
// for skip accounting.
func (c *Compositor) drawImage(ctx context.Context, dc *gg.Context, item wall.Item, width, height int) error {
	if item.Dimensions == nil {
		return fmt.Errorf("image item without dimensions")
	}

	data, err := c.resolveSource(ctx, item.Source)
	if err != nil {
		return err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image source: %w", err)
	}

	boxW := item.Dimensions.Width / 100 * float64(width)
	boxH := item.Dimensions.Height / 100 * float64(height)
	fitted := fitInto(src, boxW, boxH)
	if fitted == nil {
		return fmt.Errorf("image source has no pixel dimensions")
	}
	if item.Opacity < 1 {
		applyOpacity(fitted, item.Opacity)
	}

	x := item.Position.X / 100 * float64(width)
	y := item.Position.Y / 100 * float64(height)

	dc.Push()
	defer dc.Pop()

	dc.RotateAbout(gg.Radians(item.Rotation), x, y)
	dc.DrawImageAnchored(fitted, int(x), int(y), 0.5, 0.5)
	return nil
}

// resolveSource obtains the raw bytes for an image item: embedded data
// payload first, then a confined asset path, then a remote fetch.
func (c *Compositor) resolveSource(ctx context.Context, source string) ([]byte, error) {
	switch {
	case strings.HasPrefix(source, "data:"):
		data, _, err := assets.DecodeBlob(source)
		return data, err
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return c.fetcher.Fetch(ctx, source)
	default:
		path, err := c.assets.Resolve(source)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read asset %s: %w", source, err)
		}
		return data, nil
	}
}

// fitInto scales src to fit the box preserving aspect ratio, without
// cropping. Returns nil when either side resolves below one pixel.
func fitInto(src image.Image, boxW, boxH float64) *image.RGBA {
	srcBounds := src.Bounds()
	sw, sh := float64(srcBounds.Dx()), float64(srcBounds.Dy())
	if sw <= 0 || sh <= 0 || boxW < 1 || boxH < 1 {
		return nil
	}

	scale := boxW / sw
	if s := boxH / sh; s < scale {
		scale = s
	}
	tw, th := int(sw*scale), int(sh*scale)
	if tw < 1 || th < 1 {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, srcBounds, xdraw.Over, nil)
	return dst
}

// applyOpacity scales every premultiplied channel of img in place.
func applyOpacity(img *image.RGBA, opacity float64) {
	if opacity < 0 {
		opacity = 0
	}
	for i := range img.Pix {
		img.Pix[i] = uint8(float64(img.Pix[i]) * opacity)
	}
}

// parseHexColor parses #RGB and #RRGGBB descriptors, scaling the alpha
// channel by the item's group opacity. Unparseable colors degrade to
// near-black, matching the spray_text default.
func parseHexColor(value string, opacity float64) color.Color {
	r, g, b := uint8(0x11), uint8(0x11), uint8(0x11)

	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	switch len(hex) {
	case 3:
		if v, err := parseHexByte(string([]byte{hex[0], hex[0]})); err == nil {
			r = v
		}
		if v, err := parseHexByte(string([]byte{hex[1], hex[1]})); err == nil {
			g = v
		}
		if v, err := parseHexByte(string([]byte{hex[2], hex[2]})); err == nil {
			b = v
		}
	case 6:
		if v, err := parseHexByte(hex[0:2]); err == nil {
			r = v
		}
		if v, err := parseHexByte(hex[2:4]); err == nil {
			g = v
		}
		if v, err := parseHexByte(hex[4:6]); err == nil {
			b = v
		}
	}

	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	return color.NRGBA{R: r, G: g, B: b, A: uint8(opacity*255 + 0.5)}
}

func parseHexByte(s string) (uint8, error) {
	var v uint8
	_, err := fmt.Sscanf(s, "%02x", &v)
	return v, err
}
