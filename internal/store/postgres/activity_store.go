package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL. Rows are
// stored as JSONB so schema evolution never needs a column migration; the
// indexed ts/event columns cover the dashboard's queries.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates an ActivityStore backed by the given pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// Append inserts one activity row.
func (s *ActivityStore) Append(ctx context.Context, row domain.ActivityRow) error {
	detail, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("postgres: marshal activity row: %w", err)
	}

	const query = `INSERT INTO activity_log (ts, event, ticker, detail) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, row.Timestamp, string(row.Event), row.Ticker, detail); err != nil {
		return fmt.Errorf("postgres: append activity %s: %w", row.Event, err)
	}
	return nil
}

// ListRange returns rows with ts in [since, until), oldest first.
func (s *ActivityStore) ListRange(ctx context.Context, since, until time.Time) ([]domain.ActivityRow, error) {
	const query = `SELECT detail FROM activity_log WHERE ts >= $1 AND ts < $2 ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, since, until)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityRow
	for rows.Next() {
		var detail []byte
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("postgres: scan activity row: %w", err)
		}
		var row domain.ActivityRow
		if err := json.Unmarshal(detail, &row); err != nil {
			return nil, fmt.Errorf("postgres: decode activity row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate activity rows: %w", err)
	}
	return out, nil
}
