package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Insert appends one fill. Duplicate ids are ignored; at-least-once bus
// delivery can replay a fill.
func (s *FillStore) Insert(ctx context.Context, fill domain.Fill) error {
	const query = `
		INSERT INTO fills (id, order_id, model_id, symbol, side, qty, price, slippage, status, mode, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		fill.ID, fill.OrderID, fill.ModelID, fill.Symbol, string(fill.Side),
		fill.Qty, fill.Price, fill.Slippage, fill.Status, string(fill.Mode), fill.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", fill.ID, err)
	}
	return nil
}

// ListByModel returns fills for one model, newest first.
func (s *FillStore) ListByModel(ctx context.Context, modelID string, opts domain.ListOpts) ([]domain.Fill, error) {
	query := `
		SELECT id, order_id, model_id, symbol, side, qty, price, slippage, status, mode, ts
		FROM fills WHERE model_id = $1`
	args := []any{modelID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND ts >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY ts DESC"
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
		return nil, fmt.Errorf("postgres: list fills for %s: %w", modelID, err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side, mode string
		if err := rows.Scan(&f.ID, &f.OrderID, &f.ModelID, &f.Symbol, &side,
			&f.Qty, &f.Price, &f.Slippage, &f.Status, &mode, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Side = domain.FillSide(side)
		f.Mode = domain.ExecutionMode(mode)
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fills rows: %w", err)
	}
	return fills, nil
}

// Compile-time interface check.
var _ domain.FillStore = (*FillStore)(nil)
