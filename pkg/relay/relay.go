// Package relay fans session events out to Server-Sent-Event subscribers.
// Delivery is at-most-once per subscriber; per-session ordering equals the
// order Forward was invoked.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// SSE event names emitted by the gateway.
const (
	EventMessage  = "message"
	EventError    = "error"
	EventComplete = "execution_complete"
)

// Subscriber is one attached SSE client. Send must be bounded: a subscriber
// that blocks past its write budget returns an error and is dropped by the
// relay. Close is idempotent.
type Subscriber interface {
	Send(event string, data []byte) error
	Close()
}

// Relay is the per-session subscriber registry. It owns the subscriber sets;
// subscribers are registered by the HTTP layer and removed on write failure
// or session-terminal broadcast.
type Relay struct {
	mu       sync.RWMutex
	sessions map[string]map[Subscriber]bool
}

// New creates an empty Relay.
func New() *Relay {
	return &Relay{sessions: make(map[string]map[Subscriber]bool)}
}

// Register adds a subscriber to the session's set.
func (r *Relay) Register(sessionID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[sessionID]
	if !ok {
		set = make(map[Subscriber]bool)
		r.sessions[sessionID] = set
	}
	set[sub] = true
}

// Unregister removes a subscriber without closing it. Used when the HTTP
// client disconnects on its own.
func (r *Relay) Unregister(sessionID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sessionID, sub)
}

// Forward writes (event, payload) to every subscriber of the session.
// Individual write failures drop the failing subscriber; the rest still
// receive the event. Payload marshaling happens once per call.
func (r *Relay) Forward(sessionID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("Failed to marshal SSE payload",
			"session_id", sessionID, "event", event, "error", err)
		return
	}

	// Snapshot under the lock, then send without holding it so one slow
	// subscriber cannot stall register/close on other sessions.
	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.sessions[sessionID]))
	for sub := range r.sessions[sessionID] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(event, data); err != nil {
			slog.Warn("Dropping SSE subscriber after failed write",
				"session_id", sessionID, "event", event, "error", err)
			r.mu.Lock()
			r.removeLocked(sessionID, sub)
			r.mu.Unlock()
			sub.Close()
		}
	}
}

// CloseSession closes and deregisters every subscriber for the session.
func (r *Relay) CloseSession(sessionID string) {
	r.mu.Lock()
	set := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	for sub := range set {
		sub.Close()
	}
}

// HasSubscribers reports whether any subscriber is attached to the session.
func (r *Relay) HasSubscribers(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID]) > 0
}

// SubscriberCount returns the number of subscribers attached to the session.
func (r *Relay) SubscriberCount(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}

// removeLocked deletes a subscriber and prunes the empty set. Caller holds mu.
func (r *Relay) removeLocked(sessionID string, sub Subscriber) {
	set, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(r.sessions, sessionID)
	}
}
