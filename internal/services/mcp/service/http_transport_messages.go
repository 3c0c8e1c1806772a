package service

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// handleMessages handles POST /mcp for JSON-RPC requests.
// It maps transport-agnostic JSON-RPC payloads onto session-local MCP
// connection state so one client stays contiguous across HTTP round-trips.
// An initialize request may create a session; any other request with a
// missing or unknown session id is rejected before reaching the MCP runtime.
func (t *HTTPTransport) handleMessages(w http.ResponseWriter, r *http.Request) {
	if err := t.validateLocalRequest(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Failed to read request body: %v", err)
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		log.Printf("Invalid JSON-RPC message: %v", err)
		http.Error(w, "Invalid JSON-RPC message", http.StatusBadRequest)
		return
	}

	// The MCP HTTP transport requires initialize before other methods.
	isInitialize := false
	if req, ok := msg.(*jsonrpc.Request); ok {
		isInitialize = req.Method == "initialize"
	}

	sessionID := strings.TrimSpace(r.Header.Get("Mcp-Session-Id"))
	var session *httpSession
	var exists bool
	if sessionID != "" {
		session, exists = t.lookupSession(sessionID)
		if !exists && !isInitialize {
			writeSessionError(w, "Invalid session ID")
			return
		}
	}

	if !exists {
		if !isInitialize {
			writeSessionError(w, "Invalid or missing session ID")
			return
		}
		// Initialize without a known session: mint a fresh one.
		conn, err := t.Connect(r.Context())
		if err != nil {
			log.Printf("Failed to create session: %v", err)
			http.Error(w, "Failed to create session", http.StatusInternalServerError)
			return
		}
		sessionID = conn.SessionID()
		session, _ = t.lookupSession(sessionID)

		w.Header().Set("Mcp-Session-Id", sessionID)
	}

	if session == nil {
		http.Error(w, "Failed to retrieve session after creation", http.StatusInternalServerError)
		return
	}

	t.sessionsMu.Lock()
	session.lastUsed = time.Now()
	t.sessionsMu.Unlock()

	// Start the per-session MCP server connection if not already running.
	t.ensureServerRunning(session)

	// Requests carry a non-null ID and get a synchronous response;
	// notifications are fire-and-forget.
	var isRequest bool
	switch v := msg.(type) {
	case *jsonrpc.Request:
		isRequest = v.ID != jsonrpc.ID{}
	case *jsonrpc.Response:
		http.Error(w, "Invalid message type: response", http.StatusBadRequest)
		return
	default:
		isRequest = true
	}

	if isRequest {
		req, ok := msg.(*jsonrpc.Request)
		if !ok {
			http.Error(w, "Invalid request type", http.StatusBadRequest)
			return
		}

		respChan := make(chan jsonrpc.Message, 1)
		session.conn.pendingMu.Lock()
		session.conn.pendingReqs[req.ID] = respChan
		session.conn.pendingMu.Unlock()

		clearPending := func() {
			session.conn.pendingMu.Lock()
			delete(session.conn.pendingReqs, req.ID)
			session.conn.pendingMu.Unlock()
		}

		select {
		case session.conn.reqChan <- msg:
		case <-session.conn.closed:
			clearPending()
			writeSessionError(w, "Session closed")
			return
		case <-r.Context().Done():
			clearPending()
			http.Error(w, "Request cancelled", http.StatusRequestTimeout)
			return
		}

		select {
		case resp, ok := <-respChan:
			clearPending()
			if !ok {
				// The session was torn down before the server answered.
				writeSessionError(w, "Session closed")
				return
			}

			data, err := jsonrpc.EncodeMessage(resp)
			if err != nil {
				log.Printf("Failed to encode response: %v", err)
				http.Error(w, "Failed to encode response", http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			if _, err := w.Write(data); err != nil {
				log.Printf("Failed to write response: %v", err)
			}
		case <-r.Context().Done():
			clearPending()
			http.Error(w, "Request cancelled", http.StatusRequestTimeout)
			return
		case <-time.After(defaultRequestTimeout):
			clearPending()
			http.Error(w, "Request timeout", http.StatusRequestTimeout)
			return
		}
	} else {
		select {
		case session.conn.reqChan <- msg:
		case <-session.conn.closed:
			writeSessionError(w, "Session closed")
			return
		case <-r.Context().Done():
			http.Error(w, "Request cancelled", http.StatusRequestTimeout)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// handleDelete handles DELETE /mcp for explicit session teardown.
// Teardown is idempotent at the transport level but releases session
// resources exactly once.
func (t *HTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := t.validateLocalRequest(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get("Mcp-Session-Id"))
	if sessionID == "" {
		writeSessionError(w, "Invalid or missing session ID")
		return
	}

	if !t.removeSession(sessionID) {
		writeSessionError(w, "Invalid session ID")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeSessionError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    -32000,
			"message": message,
		},
		"id": nil,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		_, _ = w.Write([]byte("{\"jsonrpc\":\"2.0\",\"error\":{\"code\":-32000,\"message\":\"Session error\"},\"id\":null}"))
		return
	}
	_, _ = w.Write(data)
}
