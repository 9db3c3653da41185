package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Gateway.HeartbeatInterval.Std())
	assert.Equal(t, 30*time.Second, cfg.Gateway.HeartbeatTimeout.Std())
	assert.Equal(t, 200, cfg.Gateway.PendingResultCap)
	assert.Equal(t, 50, cfg.Gateway.PendingEvictBatch)
	assert.Equal(t, 500, cfg.Gateway.ProcessBufferCap)
	assert.Equal(t, 3, cfg.Gateway.SnapshotRetention)
	assert.Equal(t, 1, cfg.Gateway.MemoryTopKMin)
	assert.Equal(t, 20, cfg.Gateway.MemoryTopKMax)
	assert.Equal(t, time.Hour, cfg.Retention.CleanupInterval.Std())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Gateway, cfg.Gateway)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  heartbeat_timeout: 45s
  process_buffer_cap: 100
llm_providers:
  openai:
    type: openai
    model: gpt-4o
    api_key_env: OPENAI_API_KEY
    default: true
mcp_servers:
  github:
    transport:
      type: http
      url: https://mcp.example.com
      bearer_token_env: GITHUB_MCP_TOKEN
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden values win; untouched ones keep their defaults.
	assert.Equal(t, 45*time.Second, cfg.Gateway.HeartbeatTimeout.Std())
	assert.Equal(t, 100, cfg.Gateway.ProcessBufferCap)
	assert.Equal(t, 5*time.Second, cfg.Gateway.HeartbeatInterval.Std())
	assert.Equal(t, 200, cfg.Gateway.PendingResultCap)

	require.Contains(t, cfg.LLMProviders, "openai")
	assert.True(t, cfg.LLMProviders["openai"].Default)
	require.Contains(t, cfg.MCPServers, "github")
	assert.Equal(t, TransportTypeHTTP, cfg.MCPServers["github"].Transport.Type)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "gateway: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "gateway:\n  heartbeat_timeout: soon\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "non-positive heartbeat interval", mutate: func(c *Config) {
			c.Gateway.HeartbeatInterval = 0
		}},
		{name: "timeout not exceeding interval", mutate: func(c *Config) {
			c.Gateway.HeartbeatTimeout = c.Gateway.HeartbeatInterval
		}},
		{name: "evict batch above cap", mutate: func(c *Config) {
			c.Gateway.PendingEvictBatch = c.Gateway.PendingResultCap + 1
		}},
		{name: "non-positive buffer cap", mutate: func(c *Config) {
			c.Gateway.ProcessBufferCap = 0
		}},
		{name: "non-positive snapshot retention", mutate: func(c *Config) {
			c.Gateway.SnapshotRetention = 0
		}},
		{name: "inverted top-k clamp", mutate: func(c *Config) {
			c.Gateway.MemoryTopKMax = 0
		}},
		{name: "provider missing model", mutate: func(c *Config) {
			c.LLMProviders = map[string]LLMProviderConfig{"openai": {Type: "openai"}}
		}},
		{name: "stdio server missing command", mutate: func(c *Config) {
			c.MCPServers = map[string]MCPServerConfig{"local": {Transport: TransportConfig{Type: TransportTypeStdio}}}
		}},
		{name: "http server missing url", mutate: func(c *Config) {
			c.MCPServers = map[string]MCPServerConfig{"remote": {Transport: TransportConfig{Type: TransportTypeHTTP}}}
		}},
		{name: "unknown transport type", mutate: func(c *Config) {
			c.MCPServers = map[string]MCPServerConfig{"odd": {Transport: TransportConfig{Type: "carrier-pigeon"}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestProviderAPIKeys(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-present")
	t.Setenv("TEST_EMPTY_KEY", "")

	cfg := Defaults()
	cfg.LLMProviders = map[string]LLMProviderConfig{
		"openai":    {Type: "openai", Model: "gpt-4o", APIKeyEnv: "TEST_OPENAI_KEY"},
		"anthropic": {Type: "anthropic", Model: "claude", APIKeyEnv: "TEST_EMPTY_KEY"},
		"local":     {Type: "ollama", Model: "llama3"},
	}

	keys := cfg.ProviderAPIKeys()
	assert.Equal(t, map[string]string{"openai": "sk-present"}, keys)
}

func TestDurationYAMLRoundTrip(t *testing.T) {
	out, err := Duration(90 * time.Second).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", out)
}
