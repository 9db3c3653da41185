package models

import "time"

// Memory type taxonomy. Runtime aliases (long_term, long-term) normalize to
// semantic; unrecognized values fall back to episodic.
const (
	MemoryTypeEpisodic   = "episodic"
	MemoryTypeSemantic   = "semantic"
	MemoryTypeProcedural = "procedural"
)

// MemoryWrite contains the fields for upserting one agent memory row.
// SessionID is nil when the runtime-supplied id was not a well-formed UUID;
// the raw value is preserved in Metadata under runtime_session_id.
type MemoryWrite struct {
	OrgID      string         `json:"org_id"`
	AgentID    string         `json:"agent_id"`
	SessionID  *string        `json:"session_id,omitempty"`
	UserID     string         `json:"user_id"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"-"`
	MemoryType string         `json:"memory_type"`
	Importance float64        `json:"importance"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

// MemoryHit is one result of a memory search, highest score first.
type MemoryHit struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
