// Package assets manages the directory of uploaded sticker blobs and
// confines every path lookup to that directory.
package assets

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/tagwall/internal/platform/id"
)

// Dir is a managed asset root. Uploaded blobs are written under it and
// stored item sources reference files relative to it.
type Dir struct {
	root string
}

// New creates the asset root if needed and returns a handle to it.
func New(root string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("asset root is required")
	}
	absRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("resolve asset root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &Dir{root: absRoot}, nil
}

// Root returns the absolute asset root path.
func (d *Dir) Root() string {
	return d.root
}

// Resolve maps a stored asset reference to an absolute path, rejecting
// any reference that escapes the root after cleaning.
func (d *Dir) Resolve(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("asset reference is required")
	}
	resolved := filepath.Join(d.root, filepath.FromSlash(ref))
	resolved = filepath.Clean(resolved)
	if resolved != d.root && !strings.HasPrefix(resolved, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("asset reference %q escapes the asset root", ref)
	}
	return resolved, nil
}

// DecodeBlob decodes a base64 or data-URL image payload into raw bytes
// plus the file extension its declared media type implies. Undeclared
// payloads get the generic raster default.
func DecodeBlob(blob string) (data []byte, ext string, err error) {
	if strings.TrimSpace(blob) == "" {
		return nil, "", fmt.Errorf("image payload is required")
	}

	payload := blob
	ext = ".png"
	if strings.HasPrefix(blob, "data:") {
		mediaType, rest, err := splitDataURL(blob)
		if err != nil {
			return nil, "", err
		}
		payload = rest
		if declared := extensionForMediaType(mediaType); declared != "" {
			ext = declared
		}
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode image payload: %w", err)
	}
	return data, ext, nil
}

// SaveBlob decodes an image payload via DecodeBlob and writes it under
// the root with a generated name. It returns the reference relative to
// the root.
func (d *Dir) SaveBlob(blob string) (string, error) {
	data, ext, err := DecodeBlob(blob)
	if err != nil {
		return "", err
	}

	name, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("assign asset name: %w", err)
	}
	ref := name + ext
	if err := os.WriteFile(filepath.Join(d.root, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("write asset %s: %w", ref, err)
	}
	return ref, nil
}

// splitDataURL parses "data:<mediatype>;base64,<payload>".
func splitDataURL(blob string) (mediaType, payload string, err error) {
	rest := strings.TrimPrefix(blob, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("malformed data URL")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return "", "", fmt.Errorf("data URL must be base64 encoded")
	}
	return strings.TrimSuffix(meta, ";base64"), payload, nil
}

func extensionForMediaType(mediaType string) string {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}
