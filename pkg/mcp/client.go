// Package mcp provides MCP (Model Context Protocol) client infrastructure
// for executing tool calls the execution plane proxies through the gateway.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/semibot/gateway/pkg/config"
	"github.com/semibot/gateway/pkg/version"
)

// Client manages MCP SDK sessions for the configured servers. One Client is
// shared by all execution-plane connections; sessions are created lazily on
// first use. Thread-safe.
type Client struct {
	servers map[string]config.MCPServerConfig

	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession // serverID → session

	// Per-server mutex for session creation to prevent thundering herd
	initMu sync.Map // serverID → *sync.Mutex

	logger *slog.Logger
}

// NewClient creates a Client over the configured server set. No connections
// are opened until the first call targets a server.
func NewClient(servers map[string]config.MCPServerConfig) *Client {
	return &Client{
		servers:  servers,
		sessions: make(map[string]*mcpsdk.ClientSession),
		logger:   slog.Default(),
	}
}

// HasServer reports whether a server id is configured.
func (c *Client) HasServer(serverID string) bool {
	_, ok := c.servers[serverID]
	return ok
}

// ensureSession returns the session for a server, connecting if needed.
// Uses a per-server mutex so concurrent callers don't open duplicate
// transports.
func (c *Client) ensureSession(ctx context.Context, serverID string) (*mcpsdk.ClientSession, error) {
	c.mu.RLock()
	session, exists := c.sessions[serverID]
	c.mu.RUnlock()
	if exists {
		return session, nil
	}

	muI, _ := c.initMu.LoadOrStore(serverID, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	// Re-check under the per-server lock
	c.mu.RLock()
	session, exists = c.sessions[serverID]
	c.mu.RUnlock()
	if exists {
		return session, nil
	}

	serverCfg, ok := c.servers[serverID]
	if !ok {
		return nil, fmt.Errorf("server %q not configured", serverID)
	}

	transport, err := createTransport(serverCfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %q: %w", serverID, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err = client.Connect(initCtx, transport, nil)
	if err != nil {
		// Close the transport if it implements io.Closer to avoid leaking
		// stdio child processes on failed handshakes.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("failed to connect to %q: %w", serverID, err)
	}

	c.mu.Lock()
	c.sessions[serverID] = session
	c.mu.Unlock()

	c.logger.Info("MCP server connected", "server", serverID)
	return session, nil
}

// CallTool executes a tool call on the specified server, connecting lazily.
// On transport failure the session is recreated and the call retried once
// after a jittered backoff.
func (c *Client) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	params := &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	}

	result, err := c.callToolOnce(ctx, serverID, params)
	if err == nil {
		return result, nil
	}

	action := ClassifyError(err)
	if action == NoRetry {
		return nil, err
	}

	c.logger.Info("MCP call failed, retrying",
		"server", serverID, "tool", toolName,
		"action", action, "error", err)

	backoff := RetryBackoffMin + time.Duration(rand.Int64N(int64(RetryBackoffMax-RetryBackoffMin)))
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if action == RetryNewSession {
		c.dropSession(serverID)
	}

	result, err = c.callToolOnce(ctx, serverID, params)
	if err != nil {
		return nil, fmt.Errorf("retry failed for %q.%s: %w", serverID, toolName, err)
	}
	return result, nil
}

// callToolOnce performs a single CallTool attempt.
func (c *Client) callToolOnce(ctx context.Context, serverID string, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	session, err := c.ensureSession(ctx, serverID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	return session.CallTool(opCtx, params)
}

// dropSession closes and removes the session for a server so the next call
// reconnects.
func (c *Client) dropSession(serverID string) {
	c.mu.Lock()
	if session, exists := c.sessions[serverID]; exists {
		_ = session.Close()
		delete(c.sessions, serverID)
	}
	c.mu.Unlock()
}

// Close shuts down all sessions and transports gracefully.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for id, session := range c.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", id, err)
		}
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
	return firstErr
}
