package gateway

import (
	"github.com/google/uuid"

	"github.com/semibot/gateway/pkg/metrics"
	"github.com/semibot/gateway/pkg/models"
	"github.com/semibot/gateway/pkg/uievent"
)

// handleSSEEvent ingests one runtime event from the plane: terminal events
// tear the session stream down, process events are buffered for attachment
// to the final assistant message, everything normalizable is forwarded to
// SSE subscribers.
func (h *Hub) handleSSEEvent(conn *Connection, frame *inboundFrame) {
	ev, err := uievent.Decode([]byte(frame.Data))
	if err != nil {
		h.logger.Warn("Unparseable runtime event dropped",
			"user_id", conn.UserID, "session_id", frame.SessionID, "error", err)
		metrics.FramesDropped.WithLabelValues("bad_event").Inc()
		return
	}

	sessionID := frame.SessionID

	if ev.IsError() {
		h.dropBuffer(sessionID)
		code := ev.Code
		if code == "" {
			code = codeStreamError
		}
		message := ev.Error
		if message == "" {
			message = defaultFailureMessage
		}
		h.deps.Relay.Forward(sessionID, "error", map[string]string{
			"code":    code,
			"message": message,
		})
		h.deps.Relay.CloseSession(sessionID)
		metrics.EventsForwarded.WithLabelValues("error").Inc()
		return
	}

	if ev.IsComplete() {
		h.finishSession(conn, sessionID, ev)
		return
	}

	msg := uievent.Normalize(ev)
	if msg == nil {
		return
	}

	if uievent.IsProcessType(msg.Type) {
		h.appendBuffer(sessionID, msg)
	}

	if msg.Type == uievent.TypeFile {
		h.persistFileCard(conn, sessionID, msg)
	}

	h.deps.Relay.Forward(sessionID, "message", msg)
	metrics.EventsForwarded.WithLabelValues(string(msg.Type)).Inc()
}

// finishSession handles execution_complete: persist the assistant message
// with the buffered process trace attached, then notify and close
// subscribers. Persistence failure must not starve the browser of the
// completion event.
func (h *Hub) finishSession(conn *Connection, sessionID string, ev *uievent.Runtime) {
	finalResponse := ev.FinalResponse
	if finalResponse == "" {
		finalResponse = ev.Content
	}

	buffer := h.takeBuffer(sessionID)

	messageID := ""
	if finalResponse != "" {
		var metadata map[string]any
		if len(buffer) > 0 {
			metadata = map[string]any{
				"execution_process": map[string]any{
					"version":  1,
					"messages": buffer,
				},
			}
		}
		id, err := h.deps.Sessions.AddMessage(conn.ctx, conn.OrgID(), sessionID, models.NewMessage{
			Role:     "assistant",
			Content:  finalResponse,
			Metadata: metadata,
		})
		if err != nil {
			h.logger.Warn("Failed to persist final assistant message",
				"user_id", conn.UserID, "session_id", sessionID, "error", err)
		} else {
			messageID = id
		}
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}

	h.deps.Relay.Forward(sessionID, "execution_complete", map[string]string{
		"sessionId": sessionID,
		"messageId": messageID,
	})
	h.deps.Relay.CloseSession(sessionID)
	metrics.EventsForwarded.WithLabelValues("execution_complete").Inc()
}

// persistFileCard stores a durable empty assistant message carrying the file
// event so a later transcript reload can rehydrate the file card.
func (h *Hub) persistFileCard(conn *Connection, sessionID string, msg *uievent.Message) {
	_, err := h.deps.Sessions.AddMessage(conn.ctx, conn.OrgID(), sessionID, models.NewMessage{
		Role:     "assistant",
		Content:  "",
		Metadata: map[string]any{"agent2ui": msg},
	})
	if err != nil {
		h.logger.Warn("Failed to persist file message",
			"user_id", conn.UserID, "session_id", sessionID, "error", err)
	}
}

// appendBuffer appends one process event, truncating from the head at the
// cap so the newest events survive.
func (h *Hub) appendBuffer(sessionID string, msg *uievent.Message) {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	buf := append(h.buffers[sessionID], msg)
	if len(buf) > h.cfg.ProcessBufferCap {
		buf = buf[len(buf)-h.cfg.ProcessBufferCap:]
	}
	h.buffers[sessionID] = buf
}

// takeBuffer removes and returns the session's process buffer.
func (h *Hub) takeBuffer(sessionID string) []*uievent.Message {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	buf := h.buffers[sessionID]
	delete(h.buffers, sessionID)
	return buf
}

// dropBuffer discards the session's process buffer.
func (h *Hub) dropBuffer(sessionID string) {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	delete(h.buffers, sessionID)
}

// bufferLen reports the buffered process-event count. Used by tests.
func (h *Hub) bufferLen(sessionID string) int {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	return len(h.buffers[sessionID])
}
