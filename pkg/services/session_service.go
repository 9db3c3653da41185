package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/semibot/gateway/pkg/models"
)

// SessionService manages agent session lifecycle and transcript persistence.
type SessionService struct {
	pool *pgxpool.Pool
}

// NewSessionService creates a new SessionService
func NewSessionService(pool *pgxpool.Pool) *SessionService {
	return &SessionService{pool: pool}
}

// CreateSession creates a new session owned by the given org and user.
func (s *SessionService) CreateSession(ctx context.Context, orgID, userID, agentID, title string) (*models.Session, error) {
	if orgID == "" {
		return nil, NewValidationError("org_id", "required")
	}
	if userID == "" {
		return nil, NewValidationError("user_id", "required")
	}
	agentUUID, err := uuid.Parse(agentID)
	if err != nil {
		return nil, NewValidationError("agent_id", "must be a UUID")
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		UserID:    userID,
		AgentID:   agentUUID.String(),
		Title:     title,
		Status:    models.SessionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, org_id, user_id, agent_id, title, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.OrgID, sess.UserID, sess.AgentID, sess.Title, sess.Status, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return sess, nil
}

// GetSession fetches a session scoped to its owning org.
func (s *SessionService) GetSession(ctx context.Context, orgID, sessionID string) (*models.Session, error) {
	var sess models.Session
	var metadata []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, org_id, user_id, agent_id, title, status, metadata, created_at, updated_at
		FROM sessions WHERE id = $1 AND org_id = $2`,
		sessionID, orgID).Scan(
		&sess.ID, &sess.OrgID, &sess.UserID, &sess.AgentID, &sess.Title,
		&sess.Status, &metadata, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode session metadata: %w", err)
		}
	}
	return &sess, nil
}

// UpdateStatus moves a session to a new lifecycle status.
func (s *SessionService) UpdateStatus(ctx context.Context, sessionID, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = $2, updated_at = now() WHERE id = $1`,
		sessionID, status)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage appends a message to the session transcript and returns its ID.
// The session must belong to the given org; a miss on either id is ErrNotFound.
func (s *SessionService) AddMessage(ctx context.Context, orgID, sessionID string, msg models.NewMessage) (string, error) {
	if orgID == "" {
		return "", NewValidationError("org_id", "required")
	}
	if msg.Role == "" {
		return "", NewValidationError("role", "required")
	}

	var metadata []byte
	if msg.Metadata != nil {
		var err error
		metadata, err = json.Marshal(msg.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to marshal message metadata: %w", err)
		}
	}

	// The ownership check doubles as the transcript touch.
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET updated_at = now() WHERE id = $1 AND org_id = $2`,
		sessionID, orgID)
	if err != nil {
		return "", fmt.Errorf("failed to touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrNotFound
	}

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, session_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		id, sessionID, msg.Role, msg.Content, metadata)
	if err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}
	return id, nil
}

// ListMessages returns the session transcript in chronological order.
func (s *SessionService) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, metadata, created_at
		FROM messages WHERE session_id = $1 ORDER BY created_at`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode message metadata: %w", err)
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
