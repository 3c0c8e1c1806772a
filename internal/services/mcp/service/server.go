package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/tagwall/internal/services/mcp/domain"
	"github.com/louisbranch/tagwall/internal/wall/assets"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "Tagwall MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP runs MCP over HTTP/SSE for browser or remote clients.
	TransportHTTP TransportKind = "http"
)

// Deps carries the wall services the MCP handlers bind to.
type Deps struct {
	Store     domain.ItemStore
	Snapshots domain.Snapshotter
	Blobs     domain.BlobStore
	Assets    *assets.Dir
}

// Config configures the MCP server.
type Config struct {
	Transport TransportKind
	HTTPAddr  string // HTTP server address. Defaults to localhost:8081 for HTTP transport.
	Deps      Deps
}

// Server hosts the wall MCP server.
type Server struct {
	mcpServer *mcp.Server
	deps      Deps
}

type mcpRegistrationModule struct {
	name     string
	register func(*mcp.Server) error
}

func newMCPRegistrationModules(deps Deps) []mcpRegistrationModule {
	return []mcpRegistrationModule{
		{
			name: "spray-tools",
			register: func(server *mcp.Server) error {
				if deps.Store == nil {
					return fmt.Errorf("item store is required")
				}
				if deps.Blobs == nil {
					return fmt.Errorf("blob store is required")
				}
				mcp.AddTool(server, domain.SprayTextTool(), domain.SprayTextHandler(deps.Store))
				mcp.AddTool(server, domain.SprayImageTool(), domain.SprayImageHandler(deps.Store, deps.Blobs))
				return nil
			},
		},
		{
			name: "wall-tools",
			register: func(server *mcp.Server) error {
				mcp.AddTool(server, domain.WallListTool(), domain.WallListHandler(deps.Store))
				if deps.Snapshots == nil {
					return fmt.Errorf("snapshotter is required")
				}
				mcp.AddTool(server, domain.WallSnapshotTool(), domain.WallSnapshotHandler(deps.Store, deps.Snapshots))
				return nil
			},
		},
		{
			name: "wall-resources",
			register: func(server *mcp.Server) error {
				server.AddResource(domain.WallItemsResource(), domain.WallItemsResourceHandler(deps.Store))
				return nil
			},
		},
	}
}

// New creates a configured MCP server with the wall tools and resources
// registered against the provided services.
func New(deps Deps) (*Server, error) {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{
		CompletionHandler: completionHandler,
	})

	for _, module := range newMCPRegistrationModules(deps) {
		if err := module.register(mcpServer); err != nil {
			return nil, fmt.Errorf("register MCP module %q: %w", module.name, err)
		}
	}

	return &Server{mcpServer: mcpServer, deps: deps}, nil
}

// completionHandler handles completion/complete requests with empty results.
// The wall tools take free-form text and coordinates, so there is nothing
// useful to complete.
func completionHandler(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	return &mcp.CompleteResult{
		Completion: mcp.CompletionResultDetails{
			Values: []string{},
		},
	}, nil
}

// Run is the service entrypoint for MCP and blocks until context cancellation.
// It is transport-agnostic so startup can choose stdio for local tools and
// HTTP for browser or remote integrations.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}

	server, err := New(cfg.Deps)
	if err != nil {
		return err
	}

	switch cfg.Transport {
	case TransportStdio:
		return server.serveWithTransport(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		return server.serveHTTP(ctx, cfg)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// serveHTTP serves the MCP server over the session-scoped HTTP transport and
// mounts the wall's plain HTTP surface alongside it.
func (s *Server) serveHTTP(ctx context.Context, cfg Config) error {
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		httpAddr = "localhost:8081"
	}

	wall := newWallHTTP(s.deps.Store, s.deps.Snapshots, s.deps.Assets)
	transport := NewHTTPTransportWithServer(httpAddr, s.mcpServer, wall)
	return transport.Start(ctx)
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// serveWithTransport starts the MCP server using the provided transport.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
