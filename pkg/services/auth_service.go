package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/semibot/gateway/pkg/models"
)

// AuthService verifies execution-plane credentials. Tokens are stored as
// SHA-256 hex digests; connection tickets are single-use.
type AuthService struct {
	pool *pgxpool.Pool
}

// NewAuthService creates a new AuthService
func NewAuthService(pool *pgxpool.Pool) *AuthService {
	return &AuthService{pool: pool}
}

// VerifyToken resolves a bearer token to the identity it was issued for.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	digest := sha256.Sum256([]byte(token))
	var id models.Identity
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, org_id FROM api_tokens
		WHERE token_hash = $1 AND (expires_at IS NULL OR expires_at > now())`,
		hex.EncodeToString(digest[:])).Scan(&id.UserID, &id.OrgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return &id, nil
}

// ConsumeTicket marks a single-use connection ticket as used. A ticket that
// exists but was already consumed returns ErrTicketConsumed.
func (s *AuthService) ConsumeTicket(ctx context.Context, ticket, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vm_tickets SET consumed_at = now()
		WHERE ticket = $1 AND user_id = $2 AND consumed_at IS NULL AND expires_at > now()`,
		ticket, userID)
	if err != nil {
		return fmt.Errorf("failed to consume ticket: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM vm_tickets WHERE ticket = $1 AND user_id = $2)`,
		ticket, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check ticket: %w", err)
	}
	if exists {
		return ErrTicketConsumed
	}
	return ErrNotFound
}
