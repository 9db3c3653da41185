package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Connection status values.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusDisconnected Status = "disconnected"
)

// Outbound send failures distinguish "no such plane" from "plane not ready".
var (
	ErrConnectionNotFound = errors.New("no execution-plane connection for user")
	ErrConnectionNotReady = errors.New("execution-plane connection is not ready")
)

// PendingResult caches the outcome of one RPC so a restarted plane can
// replay it via resume instead of re-executing a side-effectful call.
type PendingResult struct {
	Status    string
	Data      any
	Error     *frameError
	UpdatedAt time.Time
}

// Connection is the state record for one live execution-plane link. All
// mutable fields are guarded by mu; socket writes are serialized by writeMu
// so frames from unrelated code paths never interleave.
type Connection struct {
	UserID string

	sock         *websocket.Conn
	writeTimeout time.Duration
	pendingCap   int
	evictBatch   int

	mu              sync.Mutex
	orgID           string
	token           string
	status          Status
	lastHeartbeatAt time.Time
	activeSessions  map[string]bool
	pending         map[string]*PendingResult

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func newConnection(parent context.Context, userID string, sock *websocket.Conn, writeTimeout time.Duration, pendingCap, evictBatch int) *Connection {
	ctx, cancel := context.WithCancel(parent)
	return &Connection{
		UserID:          userID,
		sock:            sock,
		writeTimeout:    writeTimeout,
		pendingCap:      pendingCap,
		evictBatch:      evictBatch,
		status:          StatusInitializing,
		lastHeartbeatAt: time.Now(),
		activeSessions:  make(map[string]bool),
		pending:         make(map[string]*PendingResult),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// markReady records the authenticated identity and opens the connection for
// outbound sends.
func (c *Connection) markReady(orgID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orgID = orgID
	c.token = token
	c.status = StatusReady
	c.lastHeartbeatAt = time.Now()
}

// markDisconnected flips the connection to its terminal state.
func (c *Connection) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusDisconnected
}

// OrgID returns the authenticated org, empty before auth.
func (c *Connection) OrgID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orgID
}

// Status returns the current lifecycle status.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// touchHeartbeat advances lastHeartbeatAt. The timestamp never moves
// backwards even if callers race.
func (c *Connection) touchHeartbeat(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.After(c.lastHeartbeatAt) {
		c.lastHeartbeatAt = now
	}
}

// LastHeartbeatAt returns the latest heartbeat timestamp.
func (c *Connection) LastHeartbeatAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeatAt
}

// setActiveSessions replaces the session set the plane claims to be running.
func (c *Connection) setActiveSessions(ids []string) {
	next := make(map[string]bool, len(ids))
	for _, id := range ids {
		next[id] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeSessions = next
}

// ActiveSessions returns a snapshot of the claimed session ids.
func (c *Connection) ActiveSessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.activeSessions))
	for id := range c.activeSessions {
		ids = append(ids, id)
	}
	return ids
}

// storePending caches one RPC outcome. When the cache exceeds pendingCap the
// evictBatch entries with the oldest UpdatedAt are dropped; the new entry is
// always retained.
func (c *Connection) storePending(id string, result *PendingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = result

	if len(c.pending) <= c.pendingCap {
		return
	}

	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(c.pending))
	for pid, p := range c.pending {
		entries = append(entries, entry{id: pid, at: p.UpdatedAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })

	for i := 0; i < c.evictBatch && i < len(entries); i++ {
		delete(c.pending, entries[i].id)
	}
}

// lookupPending answers a resume request: every asked id gets exactly one
// entry, absent ids come back as lost.
func (c *Connection) lookupPending(ids []string) map[string]resumeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make(map[string]resumeResult, len(ids))
	for _, id := range ids {
		p, ok := c.pending[id]
		if !ok {
			results[id] = resumeResult{Status: resumeLost}
			continue
		}
		results[id] = resumeResult{Status: p.Status, Data: p.Data, Error: p.Error}
	}
	return results
}

// pendingCount returns the cache size. Used by tests.
func (c *Connection) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// sendJSON marshals and writes one frame. Refused unless the connection is
// ready; the write itself is bounded by writeTimeout and atomic at the frame
// boundary.
func (c *Connection) sendJSON(v any) error {
	if c.Status() != StatusReady {
		return ErrConnectionNotReady
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeRaw(data)
}

// writeRaw writes one text frame under the write lock.
func (c *Connection) writeRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	return c.sock.Write(writeCtx, websocket.MessageText, data)
}

// close closes the socket with the given status and cancels the connection
// context. Safe to call more than once.
func (c *Connection) close(code websocket.StatusCode, reason string) {
	_ = c.sock.Close(code, reason)
	c.cancel()
}
