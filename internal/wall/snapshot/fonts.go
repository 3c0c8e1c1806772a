package snapshot

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// fontFamily names one of the embedded Go font families a tag's CSS-ish
// font descriptor can map onto.
type fontFamily string

const (
	familyRegular fontFamily = "regular"
	familyBold    fontFamily = "bold"
	familyItalic  fontFamily = "italic"
	familyMono    fontFamily = "mono"
)

var familyTTF = map[fontFamily][]byte{
	familyRegular: goregular.TTF,
	familyBold:    gobold.TTF,
	familyItalic:  goitalic.TTF,
	familyMono:    gomono.TTF,
}

// pickFamily maps a font descriptor such as "Impact, sans-serif" onto
// the closest embedded family. Unknown descriptors fall back to regular.
func pickFamily(descriptor string) fontFamily {
	desc := strings.ToLower(descriptor)
	switch {
	case strings.Contains(desc, "impact"),
		strings.Contains(desc, "black"),
		strings.Contains(desc, "bold"):
		return familyBold
	case strings.Contains(desc, "mono"),
		strings.Contains(desc, "courier"):
		return familyMono
	case strings.Contains(desc, "comic"),
		strings.Contains(desc, "cursive"),
		strings.Contains(desc, "italic"),
		strings.Contains(desc, "script"):
		return familyItalic
	}
	return familyRegular
}

type faceKey struct {
	family fontFamily
	size   float64
}

// fontCache parses each embedded TTF once and memoises faces per
// (family, size) pair. Faces are reused across renders.
type fontCache struct {
	mu     sync.Mutex
	parsed map[fontFamily]*sfnt.Font
	faces  map[faceKey]font.Face
}

func newFontCache() *fontCache {
	return &fontCache{
		parsed: make(map[fontFamily]*sfnt.Font),
		faces:  make(map[faceKey]font.Face),
	}
}

// face returns a rendering face for the descriptor at the given pixel size.
func (fc *fontCache) face(descriptor string, size float64) (font.Face, error) {
	family := pickFamily(descriptor)
	key := faceKey{family: family, size: size}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if face, ok := fc.faces[key]; ok {
		return face, nil
	}

	parsed, ok := fc.parsed[family]
	if !ok {
		var err error
		parsed, err = opentype.Parse(familyTTF[family])
		if err != nil {
			return nil, fmt.Errorf("parse %s font: %w", family, err)
		}
		fc.parsed[family] = parsed
	}

	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build %s face at %g: %w", family, size, err)
	}
	fc.faces[key] = face
	return face, nil
}
