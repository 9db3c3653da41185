// Execution-plane gateway server — terminates execution-plane WebSockets,
// relays session events to browsers, and exposes the control-plane API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/semibot/gateway/pkg/api"
	"github.com/semibot/gateway/pkg/cleanup"
	"github.com/semibot/gateway/pkg/config"
	"github.com/semibot/gateway/pkg/database"
	"github.com/semibot/gateway/pkg/embedding"
	"github.com/semibot/gateway/pkg/gateway"
	"github.com/semibot/gateway/pkg/mcp"
	"github.com/semibot/gateway/pkg/relay"
	"github.com/semibot/gateway/pkg/services"
	"github.com/semibot/gateway/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// mcpInvoker adapts the MCP client to the hub's collaborator surface. The
// org id scopes nothing at the transport level today; it is threaded for
// logging and future per-org server ACLs.
type mcpInvoker struct {
	client *mcp.Client
}

func (m *mcpInvoker) CallTool(ctx context.Context, server, orgID, tool string, args map[string]any) (any, error) {
	result, err := m.client.CallTool(ctx, server, tool, args)
	if err != nil {
		return nil, err
	}
	return mcp.FlattenResult(result), nil
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./deploy/config/gateway.yaml"),
		"Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")

	slog.Info("Starting gateway",
		"version", version.Full(),
		"http_port", httpPort,
		"config", *configPath)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	apiKeys := cfg.ProviderAPIKeys()

	// 2. Database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	// 3. Services
	pool := dbClient.Pool()
	sessionService := services.NewSessionService(pool)
	agentService := services.NewAgentService(pool)
	logService := services.NewLogService(pool)
	memoryService := services.NewMemoryService(pool)
	snapshotService := services.NewSnapshotService(pool, cfg.Gateway.SnapshotRetention)
	skillService := services.NewSkillService(pool)
	vmService := services.NewVMInstanceService(pool)
	authService := services.NewAuthService(pool)
	slog.Info("Services initialized")

	// 4. Embedding provider (optional)
	var embedder gateway.Embedder
	if cfg.Embedding.BaseURL != "" {
		embedder = embedding.NewClient(
			cfg.Embedding.BaseURL,
			cfg.Embedding.Model,
			os.Getenv(cfg.Embedding.APIKeyEnv))
		slog.Info("Embedding provider configured", "model", cfg.Embedding.Model)
	} else {
		slog.Info("No embedding provider, memory search will use substring fallback")
	}

	// 5. MCP client (lazy connections)
	mcpClient := mcp.NewClient(cfg.MCPServers)
	defer func() {
		if err := mcpClient.Close(); err != nil {
			slog.Error("Error closing MCP client", "error", err)
		}
	}()
	slog.Info("MCP client initialized", "servers", len(cfg.MCPServers))

	// 6. Relay + hub
	eventRelay := relay.New()
	hub := gateway.NewHub(cfg.Gateway, gateway.Deps{
		Sessions:  sessionService,
		Agents:    agentService,
		MCP:       &mcpInvoker{client: mcpClient},
		Logs:      logService,
		Memories:  memoryService,
		Snapshots: snapshotService,
		Skills:    skillService,
		VMs:       vmService,
		Auth:      authService,
		Embedder:  embedder,
		Relay:     eventRelay,
	}, cfg.LLMProviders, apiKeys)
	hub.Start()
	defer hub.Shutdown()

	// 7. Retention
	cleanupService := cleanup.NewService(cfg.Retention, memoryService, vmService)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	// 8. HTTP server (non-blocking)
	httpServer := api.NewServer(hub, sessionService, eventRelay, dbClient, cfg.Gateway.SSEWriteTimeout.Std())
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Gateway started successfully")

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}

	slog.Info("Gateway stopped")
}
