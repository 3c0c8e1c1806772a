// Package domain translates MCP tool calls into wall operations.
//
// The package is intentionally explicit about that mapping:
// - validate and normalize tool input into wall drafts,
// - route calls to the item store, asset store, and snapshotter,
// - and surface structured outputs that MCP clients can render.
package domain
