package gateway

import "github.com/coder/websocket"

// Close codes used on the execution-plane socket.
const (
	// CloseAuthFailure is sent on missing user_id, bad ticket, or bad token.
	CloseAuthFailure websocket.StatusCode = 4001
	// CloseHeartbeatTimeout is sent when the liveness bound is exceeded.
	CloseHeartbeatTimeout websocket.StatusCode = 4008
	// CloseSuperseded is sent to a prior connection when the same user
	// authenticates a new one.
	CloseSuperseded websocket.StatusCode = 4009
)

// Plane→gateway inbound frame types.
const (
	frameAuth          = "auth"
	frameHeartbeat     = "heartbeat"
	frameRequest       = "request"
	frameSSEEvent      = "sse_event"
	frameFireAndForget = "fire_and_forget"
	frameResume        = "resume"
)

// Gateway→plane outbound frame types.
const (
	frameInit           = "init"
	frameStartSession   = "start_session"
	frameUserMessage    = "user_message"
	frameCancel         = "cancel"
	frameConfigUpdate   = "config_update"
	frameResponse       = "response"
	frameResumeResponse = "resume_response"
)

// Error codes surfaced to the execution plane and SSE subscribers.
const (
	codeRequestFailed     = "REQUEST_FAILED"
	codeUnsupportedMethod = "UNSUPPORTED_METHOD"
	codePlaneDisconnected = "EXECUTION_PLANE_DISCONNECTED"
	codeStreamError       = "SSE_STREAM_ERROR"
	defaultCancelReason   = "user_cancelled"
	defaultFailureMessage = "Execution failed"
	heartbeatCloseReason  = "Heartbeat timeout"
	supersededCloseReason = "Superseded by a new connection"
)

// inboundFrame is the union of all plane→gateway frame shapes. Unknown types
// are ignored so newer planes can talk to older gateways.
type inboundFrame struct {
	Type string `json:"type"`

	// auth
	Token string `json:"token,omitempty"`

	// heartbeat. A nil slice means the payload carried no array; an empty
	// array replaces activeSessions with the empty set.
	ActiveSessions []string `json:"active_sessions,omitempty"`

	// request / fire_and_forget / sse_event
	ID        string         `json:"id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Method    string         `json:"method,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Data      string         `json:"data,omitempty"`

	// resume
	PendingIDs []string `json:"pending_ids,omitempty"`
}

// frameError is the error half of a response frame.
type frameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// responseFrame answers one request frame. Result and Error are both present
// on the wire; exactly one is non-null.
type responseFrame struct {
	Type   string      `json:"type"`
	ID     string      `json:"id"`
	Result any         `json:"result"`
	Error  *frameError `json:"error"`
}

// Resume result statuses.
const (
	resumeCompleted = "completed"
	resumeFailed    = "failed"
	resumeLost      = "lost"
)

// resumeResult is one entry of a resume_response frame.
type resumeResult struct {
	Status string      `json:"status"`
	Data   any         `json:"data,omitempty"`
	Error  *frameError `json:"error,omitempty"`
}

// resumeResponseFrame replays cached request outcomes after a plane restart.
type resumeResponseFrame struct {
	Type    string                  `json:"type"`
	Results map[string]resumeResult `json:"results"`
}

// initFrame is sent once after successful authentication.
type initFrame struct {
	Type      string                    `json:"type"`
	UserID    string                    `json:"user_id"`
	OrgID     string                    `json:"org_id"`
	APIKeys   map[string]SecretEnvelope `json:"api_keys,omitempty"`
	LLMConfig map[string]any            `json:"llm_config,omitempty"`
}
