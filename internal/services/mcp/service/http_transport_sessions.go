package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Connect implements mcp.Transport.Connect.
// Each call creates a fresh session and connection, so one client identity can
// be tracked across multiple request/notification streams without
// cross-session contamination.
func (t *HTTPTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	sessionID := t.generateSessionID()

	conn := &httpConnection{
		sessionID:   sessionID,
		reqChan:     make(chan jsonrpc.Message, defaultChannelBufferSize),
		notifyChan:  make(chan jsonrpc.Message, defaultChannelBufferSize),
		closed:      make(chan struct{}),
		ready:       make(chan struct{}, 1), // buffered so the signal never blocks
		pendingReqs: make(map[jsonrpc.ID]chan jsonrpc.Message),
	}

	session := &httpSession{
		id:        sessionID,
		conn:      conn,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
	}

	t.sessionsMu.Lock()
	t.sessions[sessionID] = session
	t.sessionsMu.Unlock()

	return conn, nil
}

// lookupSession resolves a session by the Mcp-Session-Id header value.
func (t *HTTPTransport) lookupSession(sessionID string) (*httpSession, bool) {
	t.sessionsMu.RLock()
	session, exists := t.sessions[sessionID]
	t.sessionsMu.RUnlock()
	if !exists || session == nil {
		return nil, false
	}
	return session, true
}

// removeSession releases a session exactly once: the connection close is
// guarded, and the session id is unregistered so it can never be addressed
// again. Returns false when the id was not registered.
func (t *HTTPTransport) removeSession(sessionID string) bool {
	t.sessionsMu.Lock()
	session, exists := t.sessions[sessionID]
	if exists {
		delete(t.sessions, sessionID)
	}
	t.sessionsMu.Unlock()

	if !exists || session == nil {
		return false
	}

	t.serverOnceMu.Lock()
	delete(t.serverOnce, sessionID)
	t.serverOnceMu.Unlock()

	if err := session.conn.Close(); err != nil {
		log.Printf("Failed to close session %s: %v", sessionID, err)
	}
	return true
}

func (t *HTTPTransport) generateSessionID() string {
	randomReader := rand.Read
	if t != nil && t.randomReader != nil {
		randomReader = t.randomReader
	}
	return generateSessionIDWithRandomRead(randomReader)
}

func (t *HTTPTransport) cleanupSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expirationTime := time.Now().Add(-sessionExpirationTime)

			t.sessionsMu.RLock()
			var expired []string
			for id, session := range t.sessions {
				if session.lastUsed.Before(expirationTime) {
					expired = append(expired, id)
				}
			}
			t.sessionsMu.RUnlock()

			for _, id := range expired {
				t.removeSession(id)
			}
		}
	}
}

// ensureServerRunning starts the per-session MCP server connection once.
func (t *HTTPTransport) ensureServerRunning(session *httpSession) {
	if t.server == nil {
		return
	}

	t.serverOnceMu.Lock()
	once, exists := t.serverOnce[session.id]
	if !exists {
		once = &sync.Once{}
		t.serverOnce[session.id] = once
	}
	t.serverOnceMu.Unlock()

	// A single-use transport hands Server.Connect this session's connection.
	sessionTransport := &sessionTransport{conn: session.conn}

	once.Do(func() {
		go func() {
			serverSession, err := t.server.Connect(t.serverCtx, sessionTransport, nil)
			if err != nil {
				log.Printf("Failed to connect MCP server session %s: %v", session.id, err)
				return
			}
			_ = serverSession.Wait()
		}()
	})

	// Wait briefly for the connection to become ready. If readiness has not
	// been signaled yet it will happen when the first message is read.
	select {
	case <-session.conn.ready:
	case <-t.readyAfterOrDefault()(t.serverReadyTimeoutOrDefault()):
	case <-t.serverCtx.Done():
		return
	}
}

func (t *HTTPTransport) readyAfterOrDefault() func(time.Duration) <-chan time.Time {
	if t == nil || t.readyAfter == nil {
		return time.After
	}
	return t.readyAfter
}

func (t *HTTPTransport) serverReadyTimeoutOrDefault() time.Duration {
	if t == nil || t.serverReadyTimeout <= 0 {
		return defaultSessionReadyTimeout
	}
	return t.serverReadyTimeout
}

// sessionTransport is a transport that returns a specific connection.
// It lets Server.Connect run against a pre-existing connection.
type sessionTransport struct {
	conn mcp.Connection
}

// Connect implements mcp.Transport.Connect.
func (st *sessionTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	return st.conn, nil
}

var sessionCounter atomic.Uint64

// generateSessionIDWithRandomRead builds a session id from crypto/rand bytes
// combined with a process-wide counter so ids are never reused while a
// session is registered.
func generateSessionIDWithRandomRead(randomRead func([]byte) (int, error)) string {
	b := make([]byte, 8)
	if randomRead == nil {
		randomRead = rand.Read
	}
	if _, err := randomRead(b); err != nil {
		// Fallback to timestamp + counter if crypto/rand fails.
		counter := sessionCounter.Add(1)
		return fmt.Sprintf("session_%d_%d", time.Now().UnixNano(), counter)
	}
	counter := sessionCounter.Add(1)
	return fmt.Sprintf("session_%s_%d", hex.EncodeToString(b), counter)
}
