// Package gateway implements the execution-plane connection hub: WebSocket
// lifecycle, heartbeat supervision, RPC dispatch, fire-and-forget side
// effects, and runtime-event ingest.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/semibot/gateway/pkg/config"
	"github.com/semibot/gateway/pkg/metrics"
	"github.com/semibot/gateway/pkg/uievent"
)

// Deps bundles the collaborators the hub consumes. Embedder may be nil.
type Deps struct {
	Sessions  SessionStore
	Agents    AgentStore
	MCP       MCPInvoker
	Logs      LogStore
	Memories  MemoryStore
	Snapshots SnapshotStore
	Skills    SkillStore
	VMs       VMRegistry
	Auth      Authenticator
	Embedder  Embedder
	Relay     EventRelay
}

// Hub owns every execution-plane connection in the process. Constructed once
// at startup and threaded through the HTTP layer; there is no package-level
// instance.
type Hub struct {
	cfg  config.GatewayConfig
	deps Deps

	// providers and apiKeys feed the init frame. apiKeys maps provider id
	// to the plaintext key resolved from the environment at startup.
	providers map[string]config.LLMProviderConfig
	apiKeys   map[string]string

	mu          sync.RWMutex
	connections map[string]*Connection // userID → connection

	bufMu   sync.Mutex
	buffers map[string][]*uievent.Message // sessionID → process buffer

	supervisor *Supervisor
	logger     *slog.Logger
}

// NewHub creates a hub and its heartbeat supervisor. Call Start to begin
// supervision and Shutdown to tear everything down.
func NewHub(cfg config.GatewayConfig, deps Deps, providers map[string]config.LLMProviderConfig, apiKeys map[string]string) *Hub {
	h := &Hub{
		cfg:         cfg,
		deps:        deps,
		providers:   providers,
		apiKeys:     apiKeys,
		connections: make(map[string]*Connection),
		buffers:     make(map[string][]*uievent.Message),
		logger:      slog.Default(),
	}
	h.supervisor = NewSupervisor(cfg.HeartbeatInterval.Std(), cfg.HeartbeatTimeout.Std(), h.listConnections, h.handleHeartbeatTimeout)
	return h
}

// Start launches the heartbeat supervisor.
func (h *Hub) Start() {
	h.supervisor.Start()
}

// Shutdown stops supervision and closes every socket.
func (h *Hub) Shutdown() {
	h.supervisor.Stop()

	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.connections = make(map[string]*Connection)
	h.mu.Unlock()

	for _, c := range conns {
		c.markDisconnected()
		c.close(websocket.StatusGoingAway, "Gateway shutting down")
	}
	metrics.ActiveConnections.Set(0)
}

// HandleConnection runs the full lifecycle of one upgraded socket: auth
// handshake, registration, dispatch loop, teardown. Blocks until the socket
// closes. userID comes from the query string; ticket may be empty.
func (h *Hub) HandleConnection(parentCtx context.Context, sock *websocket.Conn, userID, ticket string) {
	conn := newConnection(parentCtx, userID, sock,
		h.cfg.WriteTimeout.Std(), h.cfg.PendingResultCap, h.cfg.PendingEvictBatch)

	token, ok := h.authenticate(conn, ticket)
	if !ok {
		conn.close(CloseAuthFailure, "Authentication failed")
		return
	}

	h.register(conn)
	defer h.teardown(conn)

	if err := h.sendInit(conn, token); err != nil {
		h.logger.Warn("Failed to send init frame",
			"user_id", conn.UserID, "error", err)
		return
	}

	// Serial read loop: one frame at a time per connection.
	for {
		_, data, err := sock.Read(conn.ctx)
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Warn("Malformed frame dropped",
				"user_id", conn.UserID, "error", err)
			metrics.FramesDropped.WithLabelValues("malformed").Inc()
			continue
		}

		h.dispatch(conn, &frame)
	}
}

// authenticate performs the first-frame handshake. Returns the bearer token
// on success so the init frame can derive the secret-envelope key.
func (h *Hub) authenticate(conn *Connection, ticket string) (string, bool) {
	authCtx, cancel := context.WithTimeout(conn.ctx, h.cfg.AuthTimeout.Std())
	defer cancel()

	_, data, err := conn.sock.Read(authCtx)
	if err != nil {
		h.logger.Warn("Connection closed before auth frame", "user_id", conn.UserID, "error", err)
		return "", false
	}

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != frameAuth || frame.Token == "" {
		h.logger.Warn("Invalid auth frame", "user_id", conn.UserID)
		return "", false
	}

	if ticket != "" {
		if err := h.deps.Auth.ConsumeTicket(authCtx, ticket, conn.UserID); err != nil {
			h.logger.Warn("Ticket validation failed", "user_id", conn.UserID, "error", err)
			return "", false
		}
	}

	identity, err := h.deps.Auth.VerifyToken(authCtx, frame.Token)
	if err != nil {
		h.logger.Warn("Token verification failed", "user_id", conn.UserID, "error", err)
		return "", false
	}
	if identity.UserID != conn.UserID {
		h.logger.Warn("Token subject does not match connection user",
			"user_id", conn.UserID, "token_user_id", identity.UserID)
		return "", false
	}

	conn.markReady(identity.OrgID, frame.Token)
	return frame.Token, true
}

// register inserts the authenticated connection, superseding any prior
// connection for the same user. The old plane is torn down fully before the
// new entry becomes visible.
func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	prior := h.connections[conn.UserID]
	delete(h.connections, conn.UserID)
	h.mu.Unlock()

	if prior != nil {
		h.logger.Info("Superseding prior execution-plane connection", "user_id", conn.UserID)
		prior.markDisconnected()
		h.notifySessionsDisconnected(prior)
		prior.close(CloseSuperseded, supersededCloseReason)
	}

	h.mu.Lock()
	h.connections[conn.UserID] = conn
	h.mu.Unlock()

	if prior == nil {
		metrics.ActiveConnections.Inc()
	}

	if err := h.deps.VMs.MarkReady(conn.ctx, conn.UserID, conn.OrgID()); err != nil {
		h.logger.Warn("Failed to mark VM ready", "user_id", conn.UserID, "error", err)
	}

	h.logger.Info("Execution plane connected",
		"user_id", conn.UserID, "org_id", conn.OrgID())
}

// teardown runs when the read loop exits for any reason.
func (h *Hub) teardown(conn *Connection) {
	conn.markDisconnected()
	conn.cancel()

	h.mu.Lock()
	current, ok := h.connections[conn.UserID]
	if ok && current == conn {
		delete(h.connections, conn.UserID)
	} else {
		// Superseded: a newer connection owns this user now.
		ok = false
	}
	h.mu.Unlock()

	if ok {
		metrics.ActiveConnections.Dec()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.deps.VMs.MarkDisconnected(ctx, conn.UserID); err != nil {
			h.logger.Warn("Failed to mark VM disconnected", "user_id", conn.UserID, "error", err)
		}
		h.logger.Info("Execution plane disconnected", "user_id", conn.UserID)
	}
}

// sendInit delivers the authenticated identity, encrypted provider keys, and
// LLM routing config.
func (h *Hub) sendInit(conn *Connection, token string) error {
	frame := initFrame{
		Type:    frameInit,
		UserID:  conn.UserID,
		OrgID:   conn.OrgID(),
		APIKeys: encryptAPIKeys(token, h.apiKeys),
	}
	if len(h.providers) > 0 {
		frame.LLMConfig = map[string]any{"providers": h.providers}
	}
	return conn.sendJSON(frame)
}

// dispatch routes one parsed frame. Unknown types are ignored so newer
// planes remain compatible.
func (h *Hub) dispatch(conn *Connection, frame *inboundFrame) {
	switch frame.Type {
	case frameHeartbeat:
		h.handleHeartbeat(conn, frame)
	case frameRequest:
		h.handleRequest(conn, frame)
	case frameSSEEvent:
		h.handleSSEEvent(conn, frame)
	case frameFireAndForget:
		h.handleFireAndForget(conn, frame)
	case frameResume:
		h.handleResume(conn, frame)
	default:
		metrics.FramesDropped.WithLabelValues("unknown_type").Inc()
	}
}

// handleHeartbeat refreshes liveness and optionally replaces the claimed
// session set. The durable registry touch is best-effort.
func (h *Hub) handleHeartbeat(conn *Connection, frame *inboundFrame) {
	conn.touchHeartbeat(time.Now())
	if frame.ActiveSessions != nil {
		conn.setActiveSessions(frame.ActiveSessions)
	}
	if err := h.deps.VMs.TouchHeartbeat(conn.ctx, conn.UserID); err != nil {
		h.logger.Warn("Failed to touch VM heartbeat", "user_id", conn.UserID, "error", err)
	}
}

// handleHeartbeatTimeout is the supervisor callback: close the socket with
// 4008, mark everything disconnected, and tell every watching browser.
func (h *Hub) handleHeartbeatTimeout(conn *Connection) {
	h.logger.Warn("Heartbeat timeout, closing connection",
		"user_id", conn.UserID,
		"last_heartbeat_at", conn.LastHeartbeatAt())
	metrics.HeartbeatTimeouts.Inc()

	conn.markDisconnected()
	conn.close(CloseHeartbeatTimeout, heartbeatCloseReason)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.deps.VMs.MarkDisconnected(ctx, conn.UserID); err != nil {
		h.logger.Warn("Failed to mark VM disconnected", "user_id", conn.UserID, "error", err)
	}

	h.notifySessionsDisconnected(conn)

	h.mu.Lock()
	if h.connections[conn.UserID] == conn {
		delete(h.connections, conn.UserID)
		metrics.ActiveConnections.Dec()
	}
	h.mu.Unlock()
}

// notifySessionsDisconnected forwards a terminal error to the subscribers of
// every session the plane claimed, then closes them. The sessions will never
// emit a terminal event now, so their process buffers are released too.
func (h *Hub) notifySessionsDisconnected(conn *Connection) {
	for _, sessionID := range conn.ActiveSessions() {
		h.dropBuffer(sessionID)
		if !h.deps.Relay.HasSubscribers(sessionID) {
			continue
		}
		h.deps.Relay.Forward(sessionID, "error", map[string]string{
			"code":    codePlaneDisconnected,
			"message": "The execution plane for this session disconnected",
		})
		h.deps.Relay.CloseSession(sessionID)
	}
}

// listConnections snapshots the connection set for the supervisor.
func (h *Hub) listConnections() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	return conns
}

// Connection returns the live connection for a user, if any.
func (h *Hub) Connection(userID string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[userID]
	return c, ok
}

// ActiveConnectionCount returns the number of registered connections.
func (h *Hub) ActiveConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// send delivers one frame to a user's plane. Fails with a distinct error
// when the connection is absent or not ready.
func (h *Hub) send(userID string, payload any) error {
	conn, ok := h.Connection(userID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, userID)
	}
	return conn.sendJSON(payload)
}

// StartSession tells the plane to begin running a session.
func (h *Hub) StartSession(userID, sessionID, agentID string, params map[string]any) error {
	return h.send(userID, map[string]any{
		"type":       frameStartSession,
		"session_id": sessionID,
		"agent_id":   agentID,
		"params":     params,
	})
}

// SendUserMessage relays a user's chat message into a running session.
func (h *Hub) SendUserMessage(userID, sessionID, content string) error {
	return h.send(userID, map[string]any{
		"type":       frameUserMessage,
		"session_id": sessionID,
		"content":    content,
	})
}

// SendCancel asks the plane to stop a session. Advisory: the plane is
// expected to emit a terminal event that tears the session down naturally.
func (h *Hub) SendCancel(userID, sessionID, reason string) error {
	if reason == "" {
		reason = defaultCancelReason
	}
	return h.send(userID, map[string]any{
		"type":       frameCancel,
		"session_id": sessionID,
		"reason":     reason,
	})
}

// SendConfigUpdate pushes the current LLM routing config to one plane.
func (h *Hub) SendConfigUpdate(userID string) error {
	return h.send(userID, map[string]any{
		"type":      frameConfigUpdate,
		"providers": h.providers,
	})
}

// BroadcastLLMConfigUpdate pushes the routing config to every ready plane.
// Best-effort: individual failures are logged and do not stop the rest.
func (h *Hub) BroadcastLLMConfigUpdate() {
	for _, conn := range h.listConnections() {
		if err := conn.sendJSON(map[string]any{
			"type":      frameConfigUpdate,
			"providers": h.providers,
		}); err != nil {
			h.logger.Warn("Failed to push config update",
				"user_id", conn.UserID, "error", err)
		}
	}
}
