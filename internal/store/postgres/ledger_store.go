package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. It is the
// durable mirror of the in-memory PnL ledger so the rolling daily-loss guard
// survives restarts.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Record inserts one realized PnL event.
func (s *LedgerStore) Record(ctx context.Context, ev domain.PnLEvent) error {
	const query = `INSERT INTO pnl_ledger (at, amount) VALUES ($1, $2)`
	if _, err := s.pool.Exec(ctx, query, ev.At, ev.Amount); err != nil {
		return fmt.Errorf("postgres: record pnl event: %w", err)
	}
	return nil
}

// ListSince returns events at or after the cutoff, oldest first.
func (s *LedgerStore) ListSince(ctx context.Context, since time.Time) ([]domain.PnLEvent, error) {
	const query = `SELECT at, amount FROM pnl_ledger WHERE at >= $1 ORDER BY at ASC`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pnl events: %w", err)
	}
	defer rows.Close()

	var out []domain.PnLEvent
	for rows.Next() {
		var ev domain.PnLEvent
		if err := rows.Scan(&ev.At, &ev.Amount); err != nil {
			return nil, fmt.Errorf("postgres: scan pnl event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate pnl events: %w", err)
	}
	return out, nil
}
