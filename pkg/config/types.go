// Package config loads and validates gateway configuration from YAML plus
// environment variables, merging user values over built-in defaults.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s", "5m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back to its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete gateway configuration tree.
type Config struct {
	System       SystemConfig                 `yaml:"system"`
	Gateway      GatewayConfig                `yaml:"gateway"`
	Retention    RetentionConfig              `yaml:"retention"`
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
	MCPServers   map[string]MCPServerConfig   `yaml:"mcp_servers"`
	Embedding    EmbeddingConfig              `yaml:"embedding"`
}

// SystemConfig groups system-wide HTTP settings.
type SystemConfig struct {
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// GatewayConfig carries the tunables of the execution-plane hub.
type GatewayConfig struct {
	// HeartbeatInterval is how often the supervisor scans connections.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	// HeartbeatTimeout is the silence bound before a connection is torn down.
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`

	// PendingResultCap bounds the per-connection RPC result cache;
	// PendingEvictBatch entries are dropped (oldest first) on overflow.
	PendingResultCap  int `yaml:"pending_result_cap"`
	PendingEvictBatch int `yaml:"pending_evict_batch"`

	// ProcessBufferCap bounds the per-session process-event buffer.
	ProcessBufferCap int `yaml:"process_buffer_cap"`

	// SnapshotRetention is how many snapshots are kept per session.
	SnapshotRetention int `yaml:"snapshot_retention"`

	// Memory search top_k is clamped into [MemoryTopKMin, MemoryTopKMax].
	MemoryTopKMin int `yaml:"memory_top_k_min"`
	MemoryTopKMax int `yaml:"memory_top_k_max"`

	// WriteTimeout bounds a single WebSocket frame write.
	WriteTimeout Duration `yaml:"write_timeout"`
	// SSEWriteTimeout bounds a single subscriber push before it is dropped.
	SSEWriteTimeout Duration `yaml:"sse_write_timeout"`
	// AuthTimeout bounds the wait for the first (auth) frame.
	AuthTimeout Duration `yaml:"auth_timeout"`
}

// RetentionConfig drives the background cleanup service.
type RetentionConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	VMStaleAfter    Duration `yaml:"vm_stale_after"`
}

// LLMProviderConfig is one routing entry delivered to the execution plane in
// the init frame. API keys are never stored in config files; APIKeyEnv names
// the environment variable holding the key.
type LLMProviderConfig struct {
	Type      string `yaml:"type" json:"type"`
	Model     string `yaml:"model" json:"model"`
	BaseURL   string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"-"`
	Default   bool   `yaml:"default,omitempty" json:"default,omitempty"`
}

// MCPServerConfig declares one MCP server the gateway can call on behalf of
// the execution plane.
type MCPServerConfig struct {
	Transport TransportConfig `yaml:"transport"`
}

// Transport types supported for MCP servers.
const (
	TransportTypeStdio = "stdio"
	TransportTypeHTTP  = "http"
)

// TransportConfig describes how to reach an MCP server.
type TransportConfig struct {
	Type           string            `yaml:"type"`
	Command        string            `yaml:"command,omitempty"`
	Args           []string          `yaml:"args,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	URL            string            `yaml:"url,omitempty"`
	BearerTokenEnv string            `yaml:"bearer_token_env,omitempty"`
	Timeout        Duration          `yaml:"timeout,omitempty"`
}

// EmbeddingConfig configures the optional embedding provider used for
// memory vector search. An empty BaseURL disables embeddings and memory
// search falls back to substring matching.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}
