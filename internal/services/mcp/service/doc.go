// Package service hosts the wall MCP server and its HTTP transport.
//
// The transport speaks streamable HTTP: JSON-RPC messages arrive over POST,
// notifications stream back over SSE, and sessions are addressed with the
// Mcp-Session-Id header. Each session gets its own MCP server connection so
// one client's protocol state never leaks into another's.
package service
