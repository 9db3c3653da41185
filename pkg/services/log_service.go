package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/semibot/gateway/pkg/models"
)

// LogService records usage accounting rows and execution audit entries. Both
// are fire-and-forget from the caller's perspective; failures surface as
// errors so the caller can log them, but nothing retries.
type LogService struct {
	pool *pgxpool.Pool
}

// NewLogService creates a new LogService
func NewLogService(pool *pgxpool.Pool) *LogService {
	return &LogService{pool: pool}
}

// RecordUsage accumulates counters into the daily usage row for the org/user
// pair, creating it on first write. The period is the local calendar day.
func (s *LogService) RecordUsage(ctx context.Context, rec models.UsageRecord) error {
	if rec.OrgID == "" {
		return NewValidationError("org_id", "required")
	}
	if rec.UserID == "" {
		return NewValidationError("user_id", "required")
	}

	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_records (org_id, user_id, period, period_start, period_end,
			tokens_input, tokens_output, api_calls, sessions_count, messages_count, cost_usd)
		VALUES ($1, $2, 'daily', $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (org_id, user_id, period_start) DO UPDATE SET
			tokens_input = usage_records.tokens_input + EXCLUDED.tokens_input,
			tokens_output = usage_records.tokens_output + EXCLUDED.tokens_output,
			api_calls = usage_records.api_calls + EXCLUDED.api_calls,
			sessions_count = usage_records.sessions_count + EXCLUDED.sessions_count,
			messages_count = usage_records.messages_count + EXCLUDED.messages_count,
			cost_usd = usage_records.cost_usd + EXCLUDED.cost_usd`,
		rec.OrgID, rec.UserID, start, end,
		rec.TokensInput, rec.TokensOutput, rec.APICalls,
		rec.SessionsCount, rec.MessagesCount, rec.CostUSD)
	if err != nil {
		return fmt.Errorf("failed to upsert usage record: %w", err)
	}
	return nil
}

// LogExecution appends one audit entry emitted by the execution plane.
func (s *LogService) LogExecution(ctx context.Context, entry models.ExecutionLogEntry) error {
	if entry.OrgID == "" {
		return NewValidationError("org_id", "required")
	}

	payload, err := json.Marshal(entry.Entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	var sessionID any
	if entry.SessionID != "" {
		if _, err := uuid.Parse(entry.SessionID); err == nil {
			sessionID = entry.SessionID
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO execution_logs (id, org_id, session_id, user_id, source, entry, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		uuid.NewString(), entry.OrgID, sessionID, entry.UserID, entry.Source, payload)
	if err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}
	return nil
}
