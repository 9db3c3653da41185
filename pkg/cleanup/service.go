// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/semibot/gateway/pkg/config"
)

// MemoryPurger deletes expired agent memories.
type MemoryPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// VMPurger deletes stale disconnected VM registry rows.
type VMPurger interface {
	PurgeStale(ctx context.Context, staleAfter time.Duration) (int64, error)
}

// Service periodically enforces retention policies:
//   - Removes agent memories past their expiry
//   - Removes VM registry rows disconnected for too long
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config   config.RetentionConfig
	memories MemoryPurger
	vms      VMPurger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg config.RetentionConfig, memories MemoryPurger, vms VMPurger) *Service {
	return &Service{
		config:   cfg,
		memories: memories,
		vms:      vms,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"interval", s.config.CleanupInterval.Std(),
		"vm_stale_after", s.config.VMStaleAfter.Std())
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.purgeExpiredMemories(ctx)
	s.purgeStaleVMs(ctx)
}

func (s *Service) purgeExpiredMemories(ctx context.Context) {
	count, err := s.memories.PurgeExpired(ctx)
	if err != nil {
		slog.Error("Retention: memory purge failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: purged expired memories", "count", count)
	}
}

func (s *Service) purgeStaleVMs(ctx context.Context) {
	count, err := s.vms.PurgeStale(ctx, s.config.VMStaleAfter.Std())
	if err != nil {
		slog.Error("Retention: VM registry purge failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: purged stale VM records", "count", count)
	}
}
