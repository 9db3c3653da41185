package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/semibot/gateway/pkg/models"
)

// SnapshotService persists session state snapshots pushed by the execution
// plane and keeps only the most recent few per session.
type SnapshotService struct {
	pool      *pgxpool.Pool
	retention int
}

// NewSnapshotService creates a new SnapshotService keeping retention
// snapshots per session.
func NewSnapshotService(pool *pgxpool.Pool, retention int) *SnapshotService {
	if retention < 1 {
		retention = 1
	}
	return &SnapshotService{pool: pool, retention: retention}
}

// Save inserts a snapshot and prunes older ones past the retention window.
func (s *SnapshotService) Save(ctx context.Context, snap models.Snapshot) error {
	if snap.SessionID == "" {
		return NewValidationError("session_id", "required")
	}
	sessionID, err := uuid.Parse(snap.SessionID)
	if err != nil {
		return NewValidationError("session_id", "must be a UUID")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_snapshots (id, session_id, org_id, checkpoint,
			short_term_memory, conversation_state, file_manifest, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		uuid.NewString(), sessionID.String(), snap.OrgID,
		rawOrNil(snap.Checkpoint), rawOrNil(snap.ShortTermMemory),
		rawOrNil(snap.ConversationState), rawOrNil(snap.FileManifest))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		DELETE FROM session_snapshots
		WHERE session_id = $1 AND id NOT IN (
			SELECT id FROM session_snapshots
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		)`,
		sessionID.String(), s.retention)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for a session.
func (s *SnapshotService) Latest(ctx context.Context, orgID, sessionID string) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, org_id, checkpoint, short_term_memory, conversation_state, file_manifest
		FROM session_snapshots
		WHERE session_id = $1 AND org_id = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		sessionID, orgID).Scan(
		&snap.SessionID, &snap.OrgID, &snap.Checkpoint, &snap.ShortTermMemory,
		&snap.ConversationState, &snap.FileManifest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return &snap, nil
}

func rawOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
