package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// TickStore implements domain.TickStore using PostgreSQL.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a new TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

// InsertBatch writes ticks in one batched round-trip.
func (s *TickStore) InsertBatch(ctx context.Context, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO ticks (symbol, price, size, tick_type, ts, provider)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, t := range ticks {
		batch.Queue(query, t.Symbol, t.Price, t.Size, string(t.Type),
			time.Unix(0, t.Timestamp).UTC(), t.Provider)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range ticks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert tick batch: %w", err)
		}
	}
	return nil
}

// ListBySymbol returns ticks for one symbol, newest first.
func (s *TickStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Tick, error) {
	query := `
		SELECT symbol, price, size, tick_type, ts, COALESCE(provider, '')
		FROM ticks WHERE symbol = $1`
	args := []any{symbol}
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
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks for %s: %w", symbol, err)
	}
	defer rows.Close()

	var ticks []domain.Tick
	for rows.Next() {
		var t domain.Tick
		var tickType string
		var ts time.Time
		if err := rows.Scan(&t.Symbol, &t.Price, &t.Size, &tickType, &ts, &t.Provider); err != nil {
			return nil, fmt.Errorf("postgres: scan tick: %w", err)
		}
		t.Type = domain.TickType(tickType)
		t.Timestamp = ts.UnixNano()
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ticks rows: %w", err)
	}
	return ticks, nil
}

// Compile-time interface check.
var _ domain.TickStore = (*TickStore)(nil)
