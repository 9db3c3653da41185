package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/semibot/gateway/pkg/models"
)

// MemoryService stores and searches long-lived agent memories. Rows carry an
// optional pgvector embedding; search falls back to substring matching when
// the query could not be embedded.
type MemoryService struct {
	pool *pgxpool.Pool
}

// NewMemoryService creates a new MemoryService
func NewMemoryService(pool *pgxpool.Pool) *MemoryService {
	return &MemoryService{pool: pool}
}

// Upsert inserts one memory row. The write is idempotent per content hash on
// the runtime side; the gateway always inserts a fresh row.
func (s *MemoryService) Upsert(ctx context.Context, w models.MemoryWrite) error {
	if w.OrgID == "" {
		return NewValidationError("org_id", "required")
	}
	if w.Content == "" {
		return NewValidationError("content", "required")
	}
	agentID, err := uuid.Parse(w.AgentID)
	if err != nil {
		return NewValidationError("agent_id", "must be a UUID")
	}

	var metadata []byte
	if w.Metadata != nil {
		metadata, err = json.Marshal(w.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal memory metadata: %w", err)
		}
	}

	var embedding any
	if len(w.Embedding) > 0 {
		embedding = serializeEmbedding(w.Embedding)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_memories (id, org_id, agent_id, session_id, user_id, content,
			embedding, memory_type, importance, metadata, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8, $9, $10, $11, now(), now())`,
		uuid.NewString(), w.OrgID, agentID.String(), w.SessionID, w.UserID, w.Content,
		embedding, w.MemoryType, w.Importance, metadata, w.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// SearchByVector returns the topK memories nearest to the query embedding by
// cosine distance, skipping expired rows. Score is 1 - distance. An empty
// agentID searches the whole org.
func (s *MemoryService) SearchByVector(ctx context.Context, orgID, agentID string, embedding []float32, topK int) ([]models.MemoryHit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT content, metadata, 1 - (embedding <=> $3::vector) AS score
		FROM agent_memories
		WHERE org_id = $1 AND ($2 = '' OR agent_id::text = $2) AND embedding IS NOT NULL
		  AND (expires_at IS NULL OR expires_at > now())
		ORDER BY embedding <=> $3::vector
		LIMIT $4`,
		orgID, agentID, serializeEmbedding(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var hits []models.MemoryHit
	for rows.Next() {
		var hit models.MemoryHit
		var metadata []byte
		if err := rows.Scan(&hit.Content, &metadata, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &hit.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode memory metadata: %w", err)
			}
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// SearchBySubstring is the fallback search used when no embedding is
// available. It matches case-insensitively and scores hits by how early the
// query appears in the content.
func (s *MemoryService) SearchBySubstring(ctx context.Context, orgID, agentID, query string, topK int) ([]models.MemoryHit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT content, metadata
		FROM agent_memories
		WHERE org_id = $1 AND ($2 = '' OR agent_id::text = $2) AND content ILIKE '%' || $3 || '%'
		  AND (expires_at IS NULL OR expires_at > now())
		ORDER BY importance DESC, updated_at DESC
		LIMIT $4`,
		orgID, agentID, query, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var hits []models.MemoryHit
	for rows.Next() {
		var content string
		var metadata []byte
		if err := rows.Scan(&content, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		hit := models.MemoryHit{Content: content, Score: positionalScore(content, query)}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &hit.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode memory metadata: %w", err)
			}
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// PurgeExpired deletes memories past their expiry and returns the count.
func (s *MemoryService) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM agent_memories WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired memories: %w", err)
	}
	return tag.RowsAffected(), nil
}

// positionalScore ranks substring matches: earlier occurrences in shorter
// content score higher, bounded to (0, 1].
func positionalScore(content, query string) float64 {
	lc := strings.ToLower(content)
	lq := strings.ToLower(query)
	idx := strings.Index(lc, lq)
	if idx < 0 {
		return 0
	}
	if len(lc) == 0 {
		return 1
	}
	return 1 - float64(idx)/float64(len(lc))
}

// serializeEmbedding renders a float slice in pgvector's text format.
func serializeEmbedding(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
