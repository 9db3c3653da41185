package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// healthHandler handles GET /healthz.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth := s.db.Health(ctx)
	body := map[string]any{
		"status":             "healthy",
		"database":           dbHealth,
		"active_connections": s.hub.ActiveConnectionCount(),
	}
	if !dbHealth.Connected {
		body["status"] = "unhealthy"
		return c.JSON(http.StatusServiceUnavailable, body)
	}
	return c.JSON(http.StatusOK, body)
}
