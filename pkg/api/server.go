// Package api exposes the gateway's HTTP surface: the execution-plane
// WebSocket endpoint, the control-plane REST operations, SSE session
// streams, health, and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semibot/gateway/pkg/database"
	"github.com/semibot/gateway/pkg/gateway"
	"github.com/semibot/gateway/pkg/relay"
	"github.com/semibot/gateway/pkg/services"
)

// Server wires HTTP routes to the hub and services.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	hub      *gateway.Hub
	sessions *services.SessionService
	relay    *relay.Relay
	db       *database.Client

	sseWriteTimeout time.Duration
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(hub *gateway.Hub, sessions *services.SessionService, r *relay.Relay, db *database.Client, sseWriteTimeout time.Duration) *Server {
	s := &Server{
		echo:            echo.New(),
		hub:             hub,
		sessions:        sessions,
		relay:           r,
		db:              db,
		sseWriteTimeout: sseWriteTimeout,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(securityHeaders())

	e.GET("/healthz", s.healthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Execution-plane socket.
	e.GET("/ws/vm", s.wsHandler)

	// Control-plane surface.
	v1 := e.Group("/api/v1")
	v1.POST("/sessions", s.createSessionHandler)
	v1.POST("/sessions/:id/start", s.startSessionHandler)
	v1.POST("/sessions/:id/message", s.sendMessageHandler)
	v1.POST("/sessions/:id/cancel", s.cancelSessionHandler)
	v1.GET("/sessions/:id/stream", s.streamHandler)
	v1.POST("/config/broadcast", s.broadcastConfigHandler)
}

// Start serves HTTP on addr, blocking until shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
