package gateway

import (
	"context"

	"github.com/semibot/gateway/pkg/models"
)

// The hub consumes collaborators through these narrow interfaces so tests
// can substitute fakes and storage details stay collaborator-private.

// SessionStore loads sessions and appends transcript messages.
type SessionStore interface {
	GetSession(ctx context.Context, orgID, sessionID string) (*models.Session, error)
	AddMessage(ctx context.Context, orgID, sessionID string, msg models.NewMessage) (string, error)
}

// AgentStore loads agent definitions.
type AgentStore interface {
	GetAgent(ctx context.Context, orgID, agentID string) (*models.Agent, error)
}

// MCPInvoker proxies tool calls to MCP servers on behalf of the plane.
type MCPInvoker interface {
	CallTool(ctx context.Context, server, orgID, tool string, args map[string]any) (any, error)
}

// LogStore records usage accounting and execution audit entries.
type LogStore interface {
	RecordUsage(ctx context.Context, rec models.UsageRecord) error
	LogExecution(ctx context.Context, entry models.ExecutionLogEntry) error
}

// MemoryStore persists and searches agent memories.
type MemoryStore interface {
	Upsert(ctx context.Context, w models.MemoryWrite) error
	SearchByVector(ctx context.Context, orgID, agentID string, embedding []float32, topK int) ([]models.MemoryHit, error)
	SearchBySubstring(ctx context.Context, orgID, agentID, query string, topK int) ([]models.MemoryHit, error)
}

// SnapshotStore persists session snapshots with retention.
type SnapshotStore interface {
	Save(ctx context.Context, snap models.Snapshot) error
}

// SkillStore persists evolved skills and resolves skill packages.
type SkillStore interface {
	CreateEvolvedSkill(ctx context.Context, skill models.EvolvedSkill) (*models.EvolvedSkill, error)
	FindDefinitionBySkillID(ctx context.Context, skillID string) (*models.SkillDefinition, error)
	FindPackageByDefinition(ctx context.Context, definitionID string) (*models.SkillPackageRecord, error)
	LoadPackage(skillID, dir string) (*models.SkillPackage, error)
}

// VMRegistry is the durable registry of execution-plane instances.
type VMRegistry interface {
	MarkReady(ctx context.Context, userID, orgID string) error
	MarkDisconnected(ctx context.Context, userID string) error
	TouchHeartbeat(ctx context.Context, userID string) error
}

// Authenticator verifies credentials presented during the handshake.
type Authenticator interface {
	VerifyToken(ctx context.Context, token string) (*models.Identity, error)
	ConsumeTicket(ctx context.Context, ticket, userID string) error
}

// Embedder vectorizes text for memory search. A nil Embedder disables
// vector search; the dispatcher falls back to substring matching.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EventRelay fans session events out to SSE subscribers.
type EventRelay interface {
	Forward(sessionID, event string, payload any)
	CloseSession(sessionID string)
	HasSubscribers(sessionID string) bool
}
