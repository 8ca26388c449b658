// Package risk owns the bankroll and position sizing.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// maxLedgerEntries bounds the in-memory PnL ledger.
const maxLedgerEntries = 5000

// Limits are the runtime-tunable sizing parameters.
type Limits struct {
	MaxDailyLoss float64 // dollars, compared against the rolling 24h loss
	FlatFraction float64 // fraction of bankroll risked per trade
	MaxContracts int64
}

// Engine tracks the bankroll and realized PnL and sizes new positions. Safe
// for concurrent use: the decision loop sizes and debits while detached
// settlement tasks credit and record PnL.
type Engine struct {
	mu       sync.Mutex
	bankroll float64
	ledger   []domain.PnLEvent

	store domain.LedgerStore // optional durable mirror
	log   *slog.Logger
}

// NewEngine creates an Engine with the starting bankroll. store may be nil.
func NewEngine(bankroll float64, store domain.LedgerStore, log *slog.Logger) *Engine {
	return &Engine{
		bankroll: bankroll,
		store:    store,
		log:      log.With("component", "risk"),
	}
}

// Replay loads persisted PnL events from the trailing 24h window into the
// in-memory ledger so the daily-loss guard survives restarts. No-op without
// a store.
func (e *Engine) Replay(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	events, err := e.store.ListSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("risk: replay ledger: %w", err)
	}

	e.mu.Lock()
	e.ledger = append(e.ledger, events...)
	e.trimLocked()
	e.mu.Unlock()

	e.log.Info("ledger replayed", "events", len(events))
	return nil
}

// Bankroll returns the current bankroll in dollars.
func (e *Engine) Bankroll() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bankroll
}

// SetBankroll overwrites the bankroll, used when live mode syncs from the
// exchange balance.
func (e *Engine) SetBankroll(v float64) {
	e.mu.Lock()
	e.bankroll = v
	e.mu.Unlock()
}

// Debit subtracts a trade's cost from the bankroll.
func (e *Engine) Debit(amount float64) {
	e.mu.Lock()
	e.bankroll -= amount
	e.mu.Unlock()
}

// Credit adds a settlement payout to the bankroll.
func (e *Engine) Credit(amount float64) {
	e.mu.Lock()
	e.bankroll += amount
	e.mu.Unlock()
}

// RecordPnL appends one realized result to the ledger and mirrors it to the
// durable store when configured. A store failure is logged, not returned;
// losing one mirror write must not break settlement.
func (e *Engine) RecordPnL(ctx context.Context, amount float64, at time.Time) {
	ev := domain.PnLEvent{At: at, Amount: amount}

	e.mu.Lock()
	e.ledger = append(e.ledger, ev)
	e.trimLocked()
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.Record(ctx, ev); err != nil {
			e.log.Warn("ledger store write failed", "error", err)
		}
	}
}

// Rolling24hLoss returns the magnitude of realized losses inside the trailing
// 24h window, as a positive number.
func (e *Engine) Rolling24hLoss(now time.Time) float64 {
	cutoff := now.Add(-24 * time.Hour)

	e.mu.Lock()
	defer e.mu.Unlock()

	var loss float64
	for _, ev := range e.ledger {
		if ev.Amount < 0 && ev.At.After(cutoff) {
			loss -= ev.Amount
		}
	}
	return loss
}

// CalculateQty sizes a new position at the given entry price. Returns 0 when
// the daily-loss cap is hit, the bankroll is exhausted, or the price cannot
// buy a single contract within the risk budget.
func (e *Engine) CalculateQty(entryPriceCents int64, limits Limits, now time.Time) int64 {
	if entryPriceCents <= 0 {
		return 0
	}
	if e.Rolling24hLoss(now) >= limits.MaxDailyLoss {
		return 0
	}

	e.mu.Lock()
	bankroll := e.bankroll
	e.mu.Unlock()
	if bankroll <= 0 {
		return 0
	}

	dollarRisk := bankroll * limits.FlatFraction
	qty := int64(math.Floor(dollarRisk / (float64(entryPriceCents) / 100.0)))
	if qty < 0 {
		qty = 0
	}
	if qty > limits.MaxContracts {
		qty = limits.MaxContracts
	}
	return qty
}

// trimLocked drops the oldest entries beyond the ledger bound.
func (e *Engine) trimLocked() {
	if n := len(e.ledger) - maxLedgerEntries; n > 0 {
		e.ledger = e.ledger[n:]
	}
}
