package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/semibot/gateway/pkg/models"
)

// AgentService reads agent definitions.
type AgentService struct {
	pool *pgxpool.Pool
}

// NewAgentService creates a new AgentService
func NewAgentService(pool *pgxpool.Pool) *AgentService {
	return &AgentService{pool: pool}
}

// GetAgent fetches an agent definition scoped to its owning org.
func (s *AgentService) GetAgent(ctx context.Context, orgID, agentID string) (*models.Agent, error) {
	var agent models.Agent
	var config []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, org_id, name, model, system_prompt, config, created_at, updated_at
		FROM agents WHERE id = $1 AND org_id = $2`,
		agentID, orgID).Scan(
		&agent.ID, &agent.OrgID, &agent.Name, &agent.Model, &agent.SystemPrompt,
		&config, &agent.CreatedAt, &agent.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &agent.Config); err != nil {
			return nil, fmt.Errorf("failed to decode agent config: %w", err)
		}
	}
	return &agent, nil
}

// ListAgents returns all agent definitions for an org.
func (s *AgentService) ListAgents(ctx context.Context, orgID string) ([]models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, name, model, system_prompt, config, created_at, updated_at
		FROM agents WHERE org_id = $1 ORDER BY name`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var agent models.Agent
		var config []byte
		if err := rows.Scan(&agent.ID, &agent.OrgID, &agent.Name, &agent.Model,
			&agent.SystemPrompt, &config, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		if len(config) > 0 {
			if err := json.Unmarshal(config, &agent.Config); err != nil {
				return nil, fmt.Errorf("failed to decode agent config: %w", err)
			}
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}
