package gateway

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/semibot/gateway/pkg/metrics"
	"github.com/semibot/gateway/pkg/models"
)

// Evolution submissions scoring at or above this are approved without human
// review.
const autoApproveScore = 0.8

// handleFireAndForget executes one side-effect frame. No reply is ever sent;
// failures are logged and swallowed.
func (h *Hub) handleFireAndForget(conn *Connection, frame *inboundFrame) {
	var err error
	switch frame.Method {
	case "usage_report":
		err = h.recordUsageReport(conn, frame)
	case "audit_log":
		err = h.recordAuditLog(conn, frame)
	case "snapshot_sync":
		err = h.recordSnapshot(conn, frame)
	case "memory_write":
		err = h.recordMemoryWrite(conn, frame)
	case "evolution_submit":
		err = h.recordEvolutionSubmit(conn, frame)
	default:
		h.logger.Warn("Unknown fire-and-forget method dropped",
			"user_id", conn.UserID, "method", frame.Method)
		metrics.FireAndForgetHandled.WithLabelValues(frame.Method, "unknown").Inc()
		return
	}

	if err != nil {
		h.logger.Warn("Fire-and-forget method failed",
			"user_id", conn.UserID, "method", frame.Method, "error", err)
		metrics.FireAndForgetHandled.WithLabelValues(frame.Method, "error").Inc()
		return
	}
	metrics.FireAndForgetHandled.WithLabelValues(frame.Method, "ok").Inc()
}

// recordUsageReport accumulates one unit of API/session/message activity
// into the current day's counters.
func (h *Hub) recordUsageReport(conn *Connection, frame *inboundFrame) error {
	return h.deps.Logs.RecordUsage(conn.ctx, models.UsageRecord{
		OrgID:         conn.OrgID(),
		UserID:        conn.UserID,
		Period:        "daily",
		TokensInput:   int64(intParam(frame.Params, "tokens_input", 0)),
		TokensOutput:  int64(intParam(frame.Params, "tokens_output", 0)),
		APICalls:      1,
		SessionsCount: 1,
		MessagesCount: 1,
		CostUSD:       0,
	})
}

// recordAuditLog persists one execution-plane audit entry after confirming
// the session exists.
func (h *Hub) recordAuditLog(conn *Connection, frame *inboundFrame) error {
	orgID := conn.OrgID()
	if _, err := h.deps.Sessions.GetSession(conn.ctx, orgID, frame.SessionID); err != nil {
		return err
	}
	entry := mapParam(frame.Params, "entry")
	if len(entry) == 0 {
		entry = frame.Params
	}
	return h.deps.Logs.LogExecution(conn.ctx, models.ExecutionLogEntry{
		OrgID:     orgID,
		SessionID: frame.SessionID,
		UserID:    conn.UserID,
		Source:    "execution_plane",
		Entry:     entry,
	})
}

// recordSnapshot persists the pushed session state; the store enforces
// retention.
func (h *Hub) recordSnapshot(conn *Connection, frame *inboundFrame) error {
	return h.deps.Snapshots.Save(conn.ctx, models.Snapshot{
		SessionID:         frame.SessionID,
		OrgID:             conn.OrgID(),
		Checkpoint:        rawParam(frame.Params, "checkpoint"),
		ShortTermMemory:   rawParam(frame.Params, "short_term_memory"),
		ConversationState: rawParam(frame.Params, "conversation_state"),
		FileManifest:      rawParam(frame.Params, "file_manifest"),
	})
}

// recordMemoryWrite upserts one agent memory. A session id that is not a
// well-formed UUID is demoted to null and preserved in the metadata.
func (h *Hub) recordMemoryWrite(conn *Connection, frame *inboundFrame) error {
	agentID := stringParam(frame.Params, "agent_id")
	content := stringParam(frame.Params, "content")
	if agentID == "" || content == "" {
		return nil
	}

	metadata := mapParam(frame.Params, "metadata")
	var sessionID *string
	if frame.SessionID != "" {
		if _, err := uuid.Parse(frame.SessionID); err == nil {
			sid := frame.SessionID
			sessionID = &sid
		} else {
			if metadata == nil {
				metadata = map[string]any{}
			}
			metadata["runtime_session_id"] = frame.SessionID
		}
	}

	var vector []float32
	if h.deps.Embedder != nil {
		var err error
		vector, err = h.deps.Embedder.Embed(conn.ctx, content)
		if err != nil {
			h.logger.Warn("Embedding failed, storing memory without vector",
				"user_id", conn.UserID, "error", err)
			vector = nil
		}
	}

	return h.deps.Memories.Upsert(conn.ctx, models.MemoryWrite{
		OrgID:      conn.OrgID(),
		AgentID:    agentID,
		SessionID:  sessionID,
		UserID:     conn.UserID,
		Content:    content,
		Embedding:  vector,
		MemoryType: normalizeMemoryType(stringParam(frame.Params, "memory_type")),
		Importance: floatParam(frame.Params, "importance", 0.5),
		Metadata:   metadata,
	})
}

// recordEvolutionSubmit stores a derived skill, auto-approving high scores.
func (h *Hub) recordEvolutionSubmit(conn *Connection, frame *inboundFrame) error {
	score := floatParam(frame.Params, "quality_score", 0)
	status := models.SkillStatusPendingReview
	if score >= autoApproveScore {
		status = models.SkillStatusApproved
	}

	_, err := h.deps.Skills.CreateEvolvedSkill(conn.ctx, models.EvolvedSkill{
		OrgID:        conn.OrgID(),
		AgentID:      stringParam(frame.Params, "agent_id"),
		SessionID:    frame.SessionID,
		Name:         stringParam(frame.Params, "name"),
		Description:  stringParam(frame.Params, "description"),
		Code:         stringParam(frame.Params, "code"),
		QualityScore: score,
		Status:       status,
		Metadata:     mapParam(frame.Params, "metadata"),
	})
	return err
}

// normalizeMemoryType folds runtime aliases into the stored taxonomy.
func normalizeMemoryType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch t {
	case "long_term", "long-term":
		return models.MemoryTypeSemantic
	case models.MemoryTypeEpisodic, models.MemoryTypeSemantic, models.MemoryTypeProcedural:
		return t
	default:
		return models.MemoryTypeEpisodic
	}
}

// rawParam re-encodes one params field as raw JSON, nil when absent.
func rawParam(params map[string]any, key string) json.RawMessage {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
