package api

import (
	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/semibot/gateway/pkg/gateway"
)

// wsHandler upgrades /ws/vm connections and hands them to the hub. The hub
// owns the full lifecycle; this handler blocks until the socket closes.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Execution planes connect from arbitrary networks; auth happens on
		// the first frame, not via Origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	userID := c.QueryParam("user_id")
	if userID == "" {
		_ = conn.Close(gateway.CloseAuthFailure, "user_id is required")
		return nil
	}

	s.hub.HandleConnection(c.Request().Context(), conn, userID, c.QueryParam("ticket"))
	return nil
}
