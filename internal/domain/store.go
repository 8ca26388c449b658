package domain

import (
	"context"
	"time"
)

// PnLEvent is one realized profit-or-loss record in the risk ledger.
type PnLEvent struct {
	At     time.Time
	Amount float64
}

// LedgerStore persists realized PnL events so the rolling-loss guard
// survives restarts.
type LedgerStore interface {
	// Record appends one realized PnL event.
	Record(ctx context.Context, ev PnLEvent) error
	// ListSince returns events at or after the cutoff, oldest first.
	ListSince(ctx context.Context, since time.Time) ([]PnLEvent, error)
}

// ActivityStore is an optional durable sink for activity rows, queryable by
// time range (used by the archiver and the external dashboard).
type ActivityStore interface {
	ActivityLog
	// ListRange returns rows within [since, until), oldest first.
	ListRange(ctx context.Context, since, until time.Time) ([]ActivityRow, error)
}
