package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func TestHandleMessagesRejectsUnknownSession(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	req := httptest.NewRequest(http.MethodPost, "http://localhost:8081/mcp", body)
	req.Header.Set("Mcp-Session-Id", "session_does_not_exist")
	rec := httptest.NewRecorder()

	transport.handleMessages(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Error.Code != -32000 {
		t.Fatalf("expected JSON-RPC error -32000, got %d", payload.Error.Code)
	}
}

func TestHandleMessagesRequiresSessionForNonInitialize(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	req := httptest.NewRequest(http.MethodPost, "http://localhost:8081/mcp", body)
	rec := httptest.NewRecorder()

	transport.handleMessages(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing session, got %d", rec.Code)
	}
}

func TestHandleDeleteReleasesSessionExactlyOnce(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	conn, err := transport.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	sessionID := conn.SessionID()

	teardown := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "http://localhost:8081/mcp", nil)
		req.Header.Set("Mcp-Session-Id", sessionID)
		rec := httptest.NewRecorder()
		transport.handleDelete(rec, req)
		return rec
	}

	if rec := teardown(); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on first teardown, got %d", rec.Code)
	}

	if _, exists := transport.lookupSession(sessionID); exists {
		t.Fatal("expected session to be unregistered after teardown")
	}

	httpConn := conn.(*httpConnection)
	select {
	case <-httpConn.closed:
	default:
		t.Fatal("expected connection to be closed after teardown")
	}

	if rec := teardown(); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on repeated teardown, got %d", rec.Code)
	}
}

func TestHandleDeleteRequiresSessionHeader(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	req := httptest.NewRequest(http.MethodDelete, "http://localhost:8081/mcp", nil)
	rec := httptest.NewRecorder()
	transport.handleDelete(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session header, got %d", rec.Code)
	}
}

func TestRemoveSessionIsIdempotent(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	conn, err := transport.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	sessionID := conn.SessionID()

	if !transport.removeSession(sessionID) {
		t.Fatal("expected first removal to report release")
	}
	if transport.removeSession(sessionID) {
		t.Fatal("expected repeated removal to report no-op")
	}
}

func TestConnectionCloseIsGuarded(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	conn, err := transport.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	// A second close must not panic on already-closed channels.
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

// A teardown racing an in-flight server write must degrade to an error on the
// writer side, never a send on a closed channel.
func TestConnectionWriteDuringCloseDoesNotPanic(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	for i := 0; i < 200; i++ {
		conn, err := transport.Connect(context.Background())
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		hc, ok := conn.(*httpConnection)
		if !ok {
			t.Fatalf("unexpected connection type %T", conn)
		}

		msg, err := jsonrpc.DecodeMessage([]byte(`{"jsonrpc":"2.0","method":"notifications/progress"}`))
		if err != nil {
			t.Fatalf("decode message: %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			// Errors are expected once the connection is closed; a panic is
			// the failure mode under test.
			_ = hc.Write(context.Background(), msg)
		}()

		if err := conn.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		<-done
	}
}

func TestConnectionWriteAfterCloseReturnsError(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	conn, err := transport.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	msg, err := jsonrpc.DecodeMessage([]byte(`{"jsonrpc":"2.0","method":"notifications/progress"}`))
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if err := conn.Write(context.Background(), msg); err == nil {
		t.Fatal("expected write on a closed connection to fail")
	}
}

func TestGenerateSessionIDsAreUnique(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := transport.generateSessionID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestValidateLocalRequestRejectsForeignHost(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	req := httptest.NewRequest(http.MethodGet, "http://evil.example.com/mcp", nil)
	if err := transport.validateLocalRequest(req); err == nil {
		t.Fatal("expected foreign host to be rejected")
	}

	req = httptest.NewRequest(http.MethodGet, "http://localhost:8081/mcp", nil)
	if err := transport.validateLocalRequest(req); err != nil {
		t.Fatalf("expected loopback host to pass, got %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "http://localhost:8081/mcp", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	if err := transport.validateLocalRequest(req); err == nil {
		t.Fatal("expected foreign origin to be rejected")
	}
}

func TestValidateLocalRequestAllowsConfiguredHost(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")
	transport.allowedHosts = parseAllowedHosts([]string{"wall.internal"})

	req := httptest.NewRequest(http.MethodGet, "http://wall.internal/mcp", nil)
	if err := transport.validateLocalRequest(req); err != nil {
		t.Fatalf("expected configured host to pass, got %v", err)
	}
}

func TestHandleHealthReportsOK(t *testing.T) {
	transport := NewHTTPTransport("localhost:8081")

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8081/mcp/health", nil)
	rec := httptest.NewRecorder()
	transport.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health payload: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("unexpected health payload %v", payload)
	}
}

func TestStartReleasesConstructorContext(t *testing.T) {
	transport := NewHTTPTransport("localhost:0")
	placeholder := transport.serverCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := transport.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-placeholder.Done():
	default:
		t.Fatal("expected the constructor context to be released by Start")
	}
}
