package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/semibot/gateway/pkg/models"
)

// VMInstanceService is the durable registry of execution-plane VMs, keyed by
// user. The in-memory hub is authoritative for liveness; this registry feeds
// the control plane's view and outlives gateway restarts.
type VMInstanceService struct {
	pool *pgxpool.Pool
}

// NewVMInstanceService creates a new VMInstanceService
func NewVMInstanceService(pool *pgxpool.Pool) *VMInstanceService {
	return &VMInstanceService{pool: pool}
}

// MarkReady records that a user's plane completed init and is serving.
func (s *VMInstanceService) MarkReady(ctx context.Context, userID, orgID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vm_instances (user_id, org_id, status, last_heartbeat_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET
			org_id = EXCLUDED.org_id,
			status = EXCLUDED.status,
			last_heartbeat_at = now(),
			updated_at = now()`,
		userID, orgID, models.VMStatusReady)
	if err != nil {
		return fmt.Errorf("failed to mark vm ready: %w", err)
	}
	return nil
}

// MarkDisconnected records that a user's plane dropped off.
func (s *VMInstanceService) MarkDisconnected(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE vm_instances SET status = $2, updated_at = now() WHERE user_id = $1`,
		userID, models.VMStatusDisconnected)
	if err != nil {
		return fmt.Errorf("failed to mark vm disconnected: %w", err)
	}
	return nil
}

// TouchHeartbeat records heartbeat receipt time for a connected plane.
func (s *VMInstanceService) TouchHeartbeat(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE vm_instances SET last_heartbeat_at = now(), updated_at = now() WHERE user_id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("failed to touch vm heartbeat: %w", err)
	}
	return nil
}

// Get returns the registry record for a user.
func (s *VMInstanceService) Get(ctx context.Context, userID string) (*models.VMInstance, error) {
	var vm models.VMInstance
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, org_id, status, last_heartbeat_at, updated_at
		FROM vm_instances WHERE user_id = $1`,
		userID).Scan(&vm.UserID, &vm.OrgID, &vm.Status, &vm.LastHeartbeatAt, &vm.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vm instance: %w", err)
	}
	return &vm, nil
}

// PurgeStale deletes disconnected registry rows untouched for longer than
// staleAfter and returns the count.
func (s *VMInstanceService) PurgeStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM vm_instances
		WHERE status = $1 AND updated_at < now() - $2::interval`,
		models.VMStatusDisconnected, fmt.Sprintf("%d seconds", int(staleAfter.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale vm instances: %w", err)
	}
	return tag.RowsAffected(), nil
}
