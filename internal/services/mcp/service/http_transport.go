package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/louisbranch/tagwall/internal/platform/config"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var listenTCP = net.Listen

// mcpHTTPEnv holds env-parsed configuration for the MCP HTTP transport.
type mcpHTTPEnv struct {
	AllowedHosts []string `env:"TAGWALL_MCP_ALLOWED_HOSTS" envSeparator:","`
}

const (
	// defaultChannelBufferSize is the buffer size for request, response, and
	// notification channels. A little buffering keeps bursty clients from
	// blocking the HTTP handler.
	defaultChannelBufferSize = 10

	// defaultRequestTimeout is the maximum time to wait for a JSON-RPC response.
	defaultRequestTimeout = 30 * time.Second

	// defaultShutdownTimeout is the maximum time to wait for graceful HTTP
	// server shutdown. Longer than defaultRequestTimeout so in-flight requests
	// can finish.
	defaultShutdownTimeout = 35 * time.Second

	// sessionCleanupInterval is how often the cleanup goroutine runs.
	sessionCleanupInterval = 5 * time.Minute

	// sessionExpirationTime is how long a session can sit idle before the
	// cleanup goroutine releases it.
	sessionExpirationTime = 1 * time.Hour

	// sseHeartbeatInterval is how often lastUsed is refreshed for active SSE
	// connections.
	sseHeartbeatInterval = 30 * time.Second

	// defaultSessionReadyTimeout bounds how long we wait for a session
	// connection to become ready before request handling continues.
	defaultSessionReadyTimeout = 100 * time.Millisecond
)

// HTTPTransport implements mcp.Transport for HTTP-based MCP communication.
// It serves JSON-RPC messages over POST requests, streams notifications over
// SSE, and exposes the wall's plain HTTP surface alongside the protocol
// endpoints. Session lifecycle and cleanup are explicit so long-lived clients
// cannot leak resources.
type HTTPTransport struct {
	addr         string
	allowedHosts map[string]struct{}
	server       *mcp.Server
	wall         *wallHTTP
	sessions     map[string]*httpSession
	sessionsMu   sync.RWMutex
	httpServer   *http.Server
	serverCtx    context.Context
	serverCancel context.CancelFunc
	serverOnceMu sync.Mutex
	serverOnce   map[string]*sync.Once

	serverReadyTimeout time.Duration
	randomReader       func([]byte) (int, error)
	readyAfter         func(time.Duration) <-chan time.Time
}

// httpSession maintains state for a single MCP session in memory.
// It tracks liveness and the active connection so cleanup and SSE delivery
// can be scoped to one client session.
type httpSession struct {
	id        string
	conn      *httpConnection
	createdAt time.Time
	lastUsed  time.Time
}

// NewHTTPTransport creates a new HTTP transport that will serve MCP over HTTP.
// It defaults to localhost-only binding so the default footprint stays local
// unless explicit host configuration broadens access.
func NewHTTPTransport(addr string) *HTTPTransport {
	if addr == "" {
		addr = "localhost:8081"
	}
	var raw mcpHTTPEnv
	_ = config.ParseEnv(&raw)
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPTransport{
		addr:               addr,
		allowedHosts:       parseAllowedHosts(raw.AllowedHosts),
		sessions:           make(map[string]*httpSession),
		serverCtx:          ctx,
		serverCancel:       cancel,
		serverOnce:         make(map[string]*sync.Once),
		serverReadyTimeout: defaultSessionReadyTimeout,
		randomReader:       rand.Read,
		readyAfter:         time.After,
	}
}

// NewHTTPTransportWithServer creates a new HTTP transport bound to a
// preconfigured MCP server and wall HTTP surface.
func NewHTTPTransportWithServer(addr string, server *mcp.Server, wall *wallHTTP) *HTTPTransport {
	transport := NewHTTPTransport(addr)
	transport.server = server
	transport.wall = wall
	return transport
}

// Start starts the HTTP server and begins handling requests.
// The same server instance multiplexes POST requests, SSE streams, and the
// wall's plain HTTP endpoints while sharing host validation and session
// lifecycle enforcement.
func (t *HTTPTransport) Start(ctx context.Context) error {
	// Release the constructor's placeholder context before rebinding to the
	// caller's.
	if t.serverCancel != nil {
		t.serverCancel()
	}
	t.serverCtx, t.serverCancel = context.WithCancel(ctx)

	go t.cleanupSessions(ctx)

	mux := http.NewServeMux()

	// /mcp dispatches on method: GET streams SSE, POST carries JSON-RPC,
	// DELETE tears down the addressed session.
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			t.handleSSE(w, r)
		case http.MethodPost:
			t.handleMessages(w, r)
		case http.MethodDelete:
			t.handleDelete(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/mcp/health", t.handleHealth)

	if t.wall != nil {
		t.wall.register(mux, t.validateLocalRequest)
	}

	t.httpServer = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	log.Printf("Starting MCP HTTP server on %s", t.addr)

	errChan := make(chan error, 1)
	go func() {
		listener, err := listenTCP("tcp", t.addr)
		if err != nil {
			errChan <- err
			return
		}
		if err := t.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("Shutting down MCP HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := t.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		if t.serverCancel != nil {
			t.serverCancel()
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("HTTP server error: %w", err)
	}
}
