package models

import "time"

// VM instance lifecycle states tracked in the registry.
const (
	VMStatusProvisioned  = "provisioned"
	VMStatusReady        = "ready"
	VMStatusDisconnected = "disconnected"
)

// VMInstance is the durable record of one user's execution plane.
type VMInstance struct {
	UserID          string     `json:"user_id"`
	OrgID           string     `json:"org_id"`
	Status          string     `json:"status"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Identity is the authenticated principal behind an execution-plane socket.
type Identity struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
}
