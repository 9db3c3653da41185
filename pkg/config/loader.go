package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Defaults returns the built-in configuration, matching the documented
// tunable defaults. User YAML values are merged over this.
func Defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			HeartbeatInterval: Duration(5 * time.Second),
			HeartbeatTimeout:  Duration(30 * time.Second),
			PendingResultCap:  200,
			PendingEvictBatch: 50,
			ProcessBufferCap:  500,
			SnapshotRetention: 3,
			MemoryTopKMin:     1,
			MemoryTopKMax:     20,
			WriteTimeout:      Duration(10 * time.Second),
			SSEWriteTimeout:   Duration(5 * time.Second),
			AuthTimeout:       Duration(10 * time.Second),
		},
		Retention: RetentionConfig{
			CleanupInterval: Duration(1 * time.Hour),
			VMStaleAfter:    Duration(24 * time.Hour),
		},
	}
}

// Load reads the YAML config file at path (if it exists), merges it over the
// defaults, and validates the result. A missing file yields pure defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("Config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency of the merged configuration.
func (c *Config) Validate() error {
	g := c.Gateway
	if g.HeartbeatInterval <= 0 {
		return fmt.Errorf("gateway.heartbeat_interval must be positive")
	}
	if g.HeartbeatTimeout <= g.HeartbeatInterval {
		return fmt.Errorf("gateway.heartbeat_timeout must exceed the scan interval")
	}
	if g.PendingResultCap <= 0 || g.PendingEvictBatch <= 0 {
		return fmt.Errorf("gateway pending-result cap and evict batch must be positive")
	}
	if g.PendingEvictBatch > g.PendingResultCap {
		return fmt.Errorf("gateway.pending_evict_batch must not exceed pending_result_cap")
	}
	if g.ProcessBufferCap <= 0 {
		return fmt.Errorf("gateway.process_buffer_cap must be positive")
	}
	if g.SnapshotRetention <= 0 {
		return fmt.Errorf("gateway.snapshot_retention must be positive")
	}
	if g.MemoryTopKMin < 1 || g.MemoryTopKMax < g.MemoryTopKMin {
		return fmt.Errorf("gateway memory top-k clamp is inverted")
	}

	for name, p := range c.LLMProviders {
		if p.Type == "" || p.Model == "" {
			return fmt.Errorf("llm_providers.%s: type and model are required", name)
		}
	}
	for name, s := range c.MCPServers {
		switch s.Transport.Type {
		case TransportTypeStdio:
			if s.Transport.Command == "" {
				return fmt.Errorf("mcp_servers.%s: stdio transport requires command", name)
			}
		case TransportTypeHTTP:
			if s.Transport.URL == "" {
				return fmt.Errorf("mcp_servers.%s: http transport requires url", name)
			}
		default:
			return fmt.Errorf("mcp_servers.%s: unsupported transport type %q", name, s.Transport.Type)
		}
	}
	return nil
}

// ProviderAPIKeys resolves the configured providers' API keys from the
// environment. Providers whose variables are unset are omitted.
func (c *Config) ProviderAPIKeys() map[string]string {
	keys := make(map[string]string)
	for name, p := range c.LLMProviders {
		if p.APIKeyEnv == "" {
			continue
		}
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			keys[name] = v
		}
	}
	return keys
}
