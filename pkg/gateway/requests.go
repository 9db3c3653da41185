package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/semibot/gateway/pkg/metrics"
	"github.com/semibot/gateway/pkg/models"
)

// handleRequest answers one RPC frame: execute, cache the outcome for
// resume, then send the response. Runs on the connection's read loop so
// responses leave in arrival order.
func (h *Hub) handleRequest(conn *Connection, frame *inboundFrame) {
	result, frameErr := h.executeRequest(conn.ctx, conn, frame)

	pending := &PendingResult{UpdatedAt: time.Now()}
	outcome := "ok"
	if frameErr != nil {
		pending.Status = resumeFailed
		pending.Error = frameErr
		outcome = "error"
	} else {
		pending.Status = resumeCompleted
		pending.Data = result
	}
	conn.storePending(frame.ID, pending)
	metrics.RequestsHandled.WithLabelValues(frame.Method, outcome).Inc()

	resp := responseFrame{
		Type:   frameResponse,
		ID:     frame.ID,
		Result: result,
		Error:  frameErr,
	}
	if err := conn.sendJSON(resp); err != nil {
		h.logger.Warn("Failed to send response frame",
			"user_id", conn.UserID, "request_id", frame.ID, "error", err)
	}
}

// executeRequest runs the method switch. Collaborator errors are projected
// to REQUEST_FAILED; unknown methods to UNSUPPORTED_METHOD.
func (h *Hub) executeRequest(ctx context.Context, conn *Connection, frame *inboundFrame) (any, *frameError) {
	orgID := conn.OrgID()

	switch frame.Method {
	case "get_session":
		sessionID := frame.SessionID
		if sessionID == "" {
			sessionID = stringParam(frame.Params, "session_id")
		}
		session, err := h.deps.Sessions.GetSession(ctx, orgID, sessionID)
		if err != nil {
			return nil, requestFailed(err)
		}
		agent, err := h.deps.Agents.GetAgent(ctx, orgID, session.AgentID)
		if err != nil {
			return nil, requestFailed(err)
		}
		return map[string]any{"session": session, "agent": agent}, nil

	case "get_config":
		agent, err := h.deps.Agents.GetAgent(ctx, orgID, stringParam(frame.Params, "agent_id"))
		if err != nil {
			return nil, requestFailed(err)
		}
		return agent, nil

	case "mcp_call":
		result, err := h.deps.MCP.CallTool(ctx,
			stringParam(frame.Params, "server"), orgID,
			stringParam(frame.Params, "tool"), mapParam(frame.Params, "arguments"))
		if err != nil {
			return nil, requestFailed(err)
		}
		return result, nil

	case "memory_search":
		return h.executeMemorySearch(ctx, orgID, frame.Params)

	case "get_skill_package":
		return h.executeGetSkillPackage(ctx, frame.Params)

	default:
		return nil, &frameError{
			Code:    codeUnsupportedMethod,
			Message: "unsupported method: " + frame.Method,
		}
	}
}

// executeMemorySearch runs vector search when an embedder is wired, falling
// back to substring matching otherwise (or when embedding fails).
func (h *Hub) executeMemorySearch(ctx context.Context, orgID string, params map[string]any) (any, *frameError) {
	query := strings.TrimSpace(stringParam(params, "query"))
	if query == "" {
		return map[string]any{"results": []models.MemoryHit{}}, nil
	}

	topK := intParam(params, "top_k", h.cfg.MemoryTopKMin)
	if topK < h.cfg.MemoryTopKMin {
		topK = h.cfg.MemoryTopKMin
	}
	if topK > h.cfg.MemoryTopKMax {
		topK = h.cfg.MemoryTopKMax
	}
	agentID := stringParam(params, "agent_id")

	var hits []models.MemoryHit
	var err error
	useFallback := h.deps.Embedder == nil
	if !useFallback {
		vector, embedErr := h.deps.Embedder.Embed(ctx, query)
		if embedErr != nil {
			h.logger.Warn("Embedding failed, falling back to substring search", "error", embedErr)
			useFallback = true
		} else {
			hits, err = h.deps.Memories.SearchByVector(ctx, orgID, agentID, vector, topK)
		}
	}
	if useFallback {
		hits, err = h.deps.Memories.SearchBySubstring(ctx, orgID, agentID, query, topK)
	}
	if err != nil {
		return nil, requestFailed(err)
	}
	if hits == nil {
		hits = []models.MemoryHit{}
	}
	return map[string]any{"results": hits}, nil
}

// executeGetSkillPackage resolves skill id → definition → package → files.
// Any missing piece yields {package: null} rather than an error.
func (h *Hub) executeGetSkillPackage(ctx context.Context, params map[string]any) (any, *frameError) {
	skillID := stringParam(params, "skill_id")
	if skillID == "" {
		return map[string]any{"package": nil}, nil
	}

	def, err := h.deps.Skills.FindDefinitionBySkillID(ctx, skillID)
	if err != nil {
		return h.skillPackageMissing(skillID, err)
	}
	rec, err := h.deps.Skills.FindPackageByDefinition(ctx, def.ID)
	if err != nil {
		return h.skillPackageMissing(skillID, err)
	}
	pkg, err := h.deps.Skills.LoadPackage(skillID, rec.Path)
	if err != nil {
		return h.skillPackageMissing(skillID, err)
	}
	return map[string]any{"package": pkg}, nil
}

// handleResume replays cached outcomes. Every asked id gets exactly one
// entry; unknown ids come back as lost.
func (h *Hub) handleResume(conn *Connection, frame *inboundFrame) {
	resp := resumeResponseFrame{
		Type:    frameResumeResponse,
		Results: conn.lookupPending(frame.PendingIDs),
	}
	if err := conn.sendJSON(resp); err != nil {
		h.logger.Warn("Failed to send resume response",
			"user_id", conn.UserID, "error", err)
	}
}

func requestFailed(err error) *frameError {
	return &frameError{Code: codeRequestFailed, Message: err.Error()}
}

// skillPackageMissing yields {package:null}. Any missing piece along the
// resolution chain is a soft miss, not an RPC failure.
func (h *Hub) skillPackageMissing(skillID string, err error) (any, *frameError) {
	h.logger.Info("Skill package not resolvable", "skill_id", skillID, "reason", err)
	return map[string]any{"package": nil}, nil
}

// stringParam reads a string param, empty when absent or mistyped.
func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// mapParam reads an object param, empty map when absent or mistyped.
func mapParam(params map[string]any, key string) map[string]any {
	if v, ok := params[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

// intParam reads a numeric param, def when absent or mistyped. JSON numbers
// arrive as float64.
func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// floatParam reads a numeric param, def when absent or mistyped.
func floatParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}
