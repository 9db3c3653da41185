package models

import "encoding/json"

// Snapshot is a point-in-time capture of a session's runtime state, pushed by
// the execution plane so a restarted plane can resume mid-conversation.
type Snapshot struct {
	SessionID         string          `json:"session_id"`
	OrgID             string          `json:"org_id"`
	Checkpoint        json.RawMessage `json:"checkpoint,omitempty"`
	ShortTermMemory   json.RawMessage `json:"short_term_memory,omitempty"`
	ConversationState json.RawMessage `json:"conversation_state,omitempty"`
	FileManifest      json.RawMessage `json:"file_manifest,omitempty"`
}
