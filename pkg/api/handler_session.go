package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// createSessionRequest is the body of POST /api/v1/sessions.
type createSessionRequest struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
	Title   string `json:"title"`
}

// createSessionHandler handles POST /api/v1/sessions.
func (s *Server) createSessionHandler(c *echo.Context) error {
	orgID := orgFromRequest(c)
	if orgID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "org id is required")
	}

	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := s.sessions.CreateSession(c.Request().Context(), orgID, req.UserID, req.AgentID, req.Title)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, session)
}

// startSessionRequest is the body of POST /api/v1/sessions/:id/start.
type startSessionRequest struct {
	Params map[string]any `json:"params"`
}

// startSessionHandler tells the session owner's execution plane to begin
// running the session.
func (s *Server) startSessionHandler(c *echo.Context) error {
	orgID := orgFromRequest(c)
	if orgID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "org id is required")
	}
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	session, err := s.sessions.GetSession(c.Request().Context(), orgID, sessionID)
	if err != nil {
		return mapServiceError(err)
	}

	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.hub.StartSession(session.UserID, session.ID, session.AgentID, req.Params); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

// sendMessageRequest is the body of POST /api/v1/sessions/:id/message.
type sendMessageRequest struct {
	Content string `json:"content"`
}

// sendMessageHandler relays a user message into a running session.
func (s *Server) sendMessageHandler(c *echo.Context) error {
	orgID := orgFromRequest(c)
	if orgID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "org id is required")
	}
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	session, err := s.sessions.GetSession(c.Request().Context(), orgID, sessionID)
	if err != nil {
		return mapServiceError(err)
	}

	if err := s.hub.SendUserMessage(session.UserID, session.ID, req.Content); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "sent"})
}

// cancelSessionRequest is the body of POST /api/v1/sessions/:id/cancel.
type cancelSessionRequest struct {
	Reason string `json:"reason"`
}

// cancelSessionHandler asks the execution plane to stop a session.
func (s *Server) cancelSessionHandler(c *echo.Context) error {
	orgID := orgFromRequest(c)
	if orgID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "org id is required")
	}
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	var req cancelSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, err := s.sessions.GetSession(c.Request().Context(), orgID, sessionID)
	if err != nil {
		return mapServiceError(err)
	}

	if err := s.hub.SendCancel(session.UserID, session.ID, req.Reason); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelled"})
}

// broadcastConfigHandler pushes the current LLM routing config to every
// connected execution plane. Best-effort by design.
func (s *Server) broadcastConfigHandler(c *echo.Context) error {
	s.hub.BroadcastLLMConfigUpdate()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "broadcast"})
}
