package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL. The audit logger
// mirrors every taxonomy event here so the trail survives JSONL rotation and
// can be sliced per model or per event type for review.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one audit record. The detail map is the full JSONL record and
// is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, eventType, modelID string, detail map[string]any) error {
	if modelID == "" {
		modelID = "system"
	}

	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	const query = `INSERT INTO audit_log (event_type, model_id, detail) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, eventType, modelID, detailJSON); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", eventType, err)
	}
	return nil
}

// ListByModel returns one model's audit trail, newest first.
func (s *AuditStore) ListByModel(ctx context.Context, modelID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return s.list(ctx, "model_id", modelID, opts)
}

// ListByEvent returns all records of one event type, newest first. Useful
// for pulling every KILL_SWITCH or MANUAL_APPROVAL_MODE transition in a
// review window.
func (s *AuditStore) ListByEvent(ctx context.Context, eventType string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return s.list(ctx, "event_type", eventType, opts)
}

func (s *AuditStore) list(ctx context.Context, column, value string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := fmt.Sprintf(
		`SELECT id, event_type, model_id, detail, created_at FROM audit_log WHERE %s = $1`, column)
	args := []any{value}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries by %s: %w", column, err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detailJSON []byte

		if err := rows.Scan(&e.ID, &e.EventType, &e.ModelID, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit entries rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
