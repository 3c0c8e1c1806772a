package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/tagwall/internal/wall"
)

// timestampLayout is the RFC3339 shape used across tool results.
const timestampLayout = time.RFC3339

// WallItemsResourceURI names the readable wall listing resource.
const WallItemsResourceURI = "wall://items"

// SprayTextTool defines the MCP tool schema for spraying a text tag.
func SprayTextTool() *mcp.Tool {
	return &mcp.Tool{
		Name: "spray_text",
		Description: "Sprays a styled text tag onto the shared graffiti wall. " +
			"Position is in percent of the canvas; a position with both components below 1 is treated as fractions and scaled by 100.",
	}
}

// SprayTextHandler appends a validated text tag to the wall.
func SprayTextHandler(store ItemStore) mcp.ToolHandlerFor[SprayTextInput, SprayTextResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SprayTextInput) (*mcp.CallToolResult, SprayTextResult, error) {
		draft := wall.Draft{
			Kind:     wall.KindText,
			Position: wall.NormalizePosition(wall.Position{X: input.Position.X, Y: input.Position.Y}),
			Rotation: floatOrDefault(input.Rotation, 0),
			Opacity:  floatOrDefault(input.Opacity, 1),
			Text:     input.Text,
			Font:     stringOrDefault(input.Font, DefaultFont),
			Color:    stringOrDefault(input.Color, DefaultColor),
			Size:     floatOrDefault(input.Size, DefaultTextSize),
		}

		item, err := store.Append(ctx, draft)
		if err != nil {
			return nil, SprayTextResult{}, fmt.Errorf("spray text failed: %w", err)
		}
		return nil, SprayTextResult{ID: item.ID}, nil
	}
}

// SprayImageTool defines the MCP tool schema for spraying a sticker.
func SprayImageTool() *mcp.Tool {
	return &mcp.Tool{
		Name: "spray_image",
		Description: "Sprays an image sticker onto the shared graffiti wall from a URL or an uploaded payload; exactly one of image_url and image_blob is required. " +
			"Position and dimensions are in percent of the canvas; pairs with both components below 1 are treated as fractions and scaled by 100.",
	}
}

// SprayImageHandler resolves the image source, persists uploaded
// payloads into the asset directory, and appends the sticker.
func SprayImageHandler(store ItemStore, blobs BlobStore) mcp.ToolHandlerFor[SprayImageInput, SprayImageResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SprayImageInput) (*mcp.CallToolResult, SprayImageResult, error) {
		source, err := resolveImageSource(input, blobs)
		if err != nil {
			return nil, SprayImageResult{}, err
		}

		dimensions := wall.NormalizeDimensions(wall.Dimensions{
			Width:  input.Dimensions.Width,
			Height: input.Dimensions.Height,
		})
		draft := wall.Draft{
			Kind:       wall.KindImage,
			Position:   wall.NormalizePosition(wall.Position{X: input.Position.X, Y: input.Position.Y}),
			Rotation:   floatOrDefault(input.Rotation, 0),
			Opacity:    floatOrDefault(input.Opacity, 1),
			Dimensions: &dimensions,
			Source:     source,
		}

		item, err := store.Append(ctx, draft)
		if err != nil {
			return nil, SprayImageResult{}, fmt.Errorf("spray image failed: %w", err)
		}
		return nil, SprayImageResult{ID: item.ID}, nil
	}
}

// resolveImageSource enforces the image_url/image_blob alternative and
// turns uploads into asset references.
func resolveImageSource(input SprayImageInput, blobs BlobStore) (string, error) {
	url := strings.TrimSpace(input.ImageURL)
	blob := strings.TrimSpace(input.ImageBlob)

	switch {
	case url != "" && blob != "":
		return "", fmt.Errorf("%w: exactly one of image_url and image_blob is required, got both", wall.ErrValidation)
	case url == "" && blob == "":
		return "", fmt.Errorf("%w: exactly one of image_url and image_blob is required", wall.ErrValidation)
	case url != "":
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return "", fmt.Errorf("%w: image_url must be an HTTP(S) URL", wall.ErrValidation)
		}
		return url, nil
	default:
		ref, err := blobs.SaveBlob(blob)
		if err != nil {
			return "", fmt.Errorf("%w: %v", wall.ErrValidation, err)
		}
		return ref, nil
	}
}

// WallListTool defines the MCP tool schema for listing the wall.
func WallListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "wall_list",
		Description: "Lists every graffiti item on the wall in rendering order (oldest first).",
	}
}

// WallListHandler returns the full wall state.
func WallListHandler(store ItemStore) mcp.ToolHandlerFor[WallListInput, WallListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ WallListInput) (*mcp.CallToolResult, WallListResult, error) {
		items, err := store.List(ctx)
		if err != nil {
			return nil, WallListResult{}, fmt.Errorf("wall list failed: %w", err)
		}

		result := WallListResult{
			Items: make([]WallItemEntry, 0, len(items)),
			Count: len(items),
		}
		for _, item := range items {
			result.Items = append(result.Items, wallItemEntry(item))
		}
		return nil, result, nil
	}
}

// WallSnapshotTool defines the MCP tool schema for forcing a render.
func WallSnapshotTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "wall_snapshot",
		Description: "Renders the current wall state onto the background (or returns the cached composite) and reports the artifact metadata.",
	}
}

// WallSnapshotHandler renders the current state and reports the
// recorded artifact metadata.
func WallSnapshotHandler(store ItemStore, snapshots Snapshotter) mcp.ToolHandlerFor[WallSnapshotInput, WallSnapshotResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ WallSnapshotInput) (*mcp.CallToolResult, WallSnapshotResult, error) {
		items, err := store.List(ctx)
		if err != nil {
			return nil, WallSnapshotResult{}, fmt.Errorf("wall snapshot failed: %w", err)
		}
		artifact, err := snapshots.Snapshot(ctx, items)
		if err != nil {
			return nil, WallSnapshotResult{}, fmt.Errorf("wall snapshot failed: %w", err)
		}
		return nil, WallSnapshotResult{
			Fingerprint:   artifact.Fingerprint,
			Width:         artifact.Width,
			Height:        artifact.Height,
			ItemCount:     artifact.ItemCount,
			SkippedImages: artifact.SkippedImages,
		}, nil
	}
}

// WallItemsResource defines the readable wall listing resource.
func WallItemsResource() *mcp.Resource {
	return &mcp.Resource{
		URI:         WallItemsResourceURI,
		Name:        "wall-items",
		Description: "The full graffiti wall state in rendering order.",
		MIMEType:    "application/json",
	}
}

// WallItemsResourceHandler serves the wall listing as a JSON resource.
func WallItemsResourceHandler(store ItemStore) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		items, err := store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("wall items resource failed: %w", err)
		}

		payload := WallListPayload{Items: make([]WallItemEntry, 0, len(items))}
		for _, item := range items {
			payload.Items = append(payload.Items, wallItemEntry(item))
		}

		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal wall items: %w", err)
		}

		uri := WallItemsResourceURI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

func floatOrDefault(value *float64, fallback float64) float64 {
	if value == nil {
		return fallback
	}
	return *value
}

func stringOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
