package webserver

import (
	"sync"

	"github.com/overseer-cli/overseer/internal/debug"
	"github.com/overseer-cli/overseer/internal/eventq"
	"github.com/overseer-cli/overseer/internal/hexid"
)

// outboundBufferLen is the per-connection queue between the hub and the
// websocket writer. A viewer that cannot drain it loses snapshots, which is
// safe: the next snapshot is always a complete replacement.
const outboundBufferLen = 256

// ViewerConn is one registered websocket viewer. Its outbound channel is
// owned by the registry and closed on Unregister.
type ViewerConn struct {
	id  string
	out chan []byte

	mu       sync.Mutex
	sessions map[string]bool
}

// Outbound returns the channel the websocket writer drains.
func (c *ViewerConn) Outbound() <-chan []byte { return c.out }

// subscribed reports whether the connection watches the given session.
func (c *ViewerConn) subscribed(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[sessionID]
}

// ConnRegistry tracks live viewer connections and their session
// subscriptions. It is the hub's delivery sink: forwarding never blocks and
// never calls back into the hub.
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[string]*ViewerConn
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[string]*ViewerConn)}
}

// Register adds a new viewer connection.
func (r *ConnRegistry) Register() *ViewerConn {
	conn := &ViewerConn{
		id:       hexid.New(),
		out:      make(chan []byte, outboundBufferLen),
		sessions: make(map[string]bool),
	}
	r.mu.Lock()
	r.conns[conn.id] = conn
	r.mu.Unlock()
	return conn
}

// Unregister removes the connection and closes its outbound channel.
func (r *ConnRegistry) Unregister(conn *ViewerConn) {
	r.mu.Lock()
	_, ok := r.conns[conn.id]
	delete(r.conns, conn.id)
	r.mu.Unlock()
	if ok {
		close(conn.out)
	}
}

// Attach subscribes the connection to a session's snapshot stream.
func (r *ConnRegistry) Attach(conn *ViewerConn, sessionID string) {
	conn.mu.Lock()
	conn.sessions[sessionID] = true
	conn.mu.Unlock()
}

// Detach removes one session subscription.
func (r *ConnRegistry) Detach(conn *ViewerConn, sessionID string) {
	conn.mu.Lock()
	delete(conn.sessions, sessionID)
	conn.mu.Unlock()
}

// ForwardToSession delivers an encoded message to every connection
// subscribed to the session. Full outbound queues drop the message rather
// than block the hub.
func (r *ConnRegistry) ForwardToSession(sessionID string, data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.conns {
		if !conn.subscribed(sessionID) {
			continue
		}
		if !eventq.Offer(conn.out, data) {
			debug.LogKV("webserver", "dropping snapshot due to backpressure",
				"conn", conn.id, "session", sessionID)
		}
	}
}
