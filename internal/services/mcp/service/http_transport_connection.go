package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// httpConnection implements mcp.Connection for HTTP-based communication.
// The MCP SDK expects a bidirectional connection model, so this adapter maps
// request/response flow and notification delivery onto separate buffered
// channels.
type httpConnection struct {
	sessionID   string
	reqChan     chan jsonrpc.Message
	notifyChan  chan jsonrpc.Message // separate channel for notifications (SSE)
	closed      chan struct{}
	ready       chan struct{} // signals when Server.Connect has started reading
	readyOnce   sync.Once
	mu          sync.Mutex
	closedFlag  bool
	pendingReqs map[jsonrpc.ID]chan jsonrpc.Message // request ID to response channel
	pendingMu   sync.Mutex
}

func (c *httpConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	// Signal readiness on first read, when Server.Connect starts consuming.
	c.readyOnce.Do(func() {
		select {
		case c.ready <- struct{}{}:
		default:
		}
	})

	select {
	case msg := <-c.reqChan:
		return msg, nil
	case <-c.closed:
		return nil, fmt.Errorf("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements mcp.Connection.Write.
// Responses are routed to the pending request that matches their ID; anything
// else goes to the notification channel for SSE delivery. The split keeps
// unrelated notifications away from callers awaiting a specific response.
func (c *httpConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	if c.isClosed() {
		return fmt.Errorf("connection closed")
	}

	if resp, ok := msg.(*jsonrpc.Response); ok && resp.ID != (jsonrpc.ID{}) {
		if c.deliverResponse(resp.ID, msg) {
			return nil
		}
		// No pending request found; treat as notification.
	}

	select {
	case c.notifyChan <- msg:
		return nil
	case <-c.closed:
		return fmt.Errorf("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliverResponse hands msg to the waiter registered for id, if any. The send
// is performed under pendingMu so Close cannot close the per-request channel
// between the lookup and the send.
func (c *httpConnection) deliverResponse(id jsonrpc.ID, msg jsonrpc.Message) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	respChan, exists := c.pendingReqs[id]
	if !exists {
		return false
	}
	select {
	case respChan <- msg:
	default:
		// The buffered slot is already taken; a duplicate response for the
		// same id is dropped.
	}
	return true
}

func (c *httpConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedFlag
}

// Close implements mcp.Connection.Close.
// Shutdown is signaled solely through the closed channel; the data channels
// are never closed because concurrent senders select against c.closed rather
// than checking a flag, so closing under them would turn a racing send into a
// panic. Per-request channels are the exception: their only writer sends
// under pendingMu, so they can be closed safely under the same lock.
func (c *httpConnection) Close() error {
	c.mu.Lock()
	if c.closedFlag {
		c.mu.Unlock()
		return nil
	}
	c.closedFlag = true
	close(c.closed)
	c.mu.Unlock()

	c.pendingMu.Lock()
	for _, respChan := range c.pendingReqs {
		close(respChan)
	}
	c.pendingReqs = nil
	c.pendingMu.Unlock()

	return nil
}

// SessionID implements mcp.Connection.SessionID.
func (c *httpConnection) SessionID() string {
	return c.sessionID
}
