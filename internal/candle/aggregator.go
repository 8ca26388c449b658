// Package candle synthesizes 1-minute OHLCV bars from a stream of
// (timestamp, price) ticks.
package candle

import (
	"sync"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// MaxCandles bounds the closed-bar history; the oldest bar is evicted once
// the bound is reached.
const MaxCandles = 1000

// Aggregator builds 1-minute candles from ticks. The current forming candle
// is mutable; closed candles are frozen. Safe for concurrent use, though in
// practice only the indicator loop writes.
type Aggregator struct {
	mu      sync.Mutex
	closed  []domain.Candle
	current *domain.Candle
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// minuteBucket floors a millisecond timestamp to the start of its UTC minute.
func minuteBucket(tsMs int64) int64 {
	return tsMs / 60_000 * 60_000
}

// Ingest feeds one tick. It returns true when the tick crossed a minute
// boundary and a candle was just closed, signalling that the indicator should
// be recalculated. Re-ingesting an identical tick is idempotent beyond the
// first application.
func (a *Aggregator) Ingest(tsMs int64, price float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := minuteBucket(tsMs)

	switch {
	case a.current == nil:
		a.current = &domain.Candle{
			TimestampMs: bucket,
			Open:        price, High: price, Low: price, Close: price,
		}
		return false

	case bucket != a.current.TimestampMs:
		a.closed = append(a.closed, *a.current)
		if len(a.closed) > MaxCandles {
			a.closed = a.closed[1:]
		}
		a.current = &domain.Candle{
			TimestampMs: bucket,
			Open:        price, High: price, Low: price, Close: price,
		}
		return true

	default:
		if price > a.current.High {
			a.current.High = price
		}
		if price < a.current.Low {
			a.current.Low = price
		}
		a.current.Close = price
		return false
	}
}

// SeedClosed pre-fills the closed history, typically from a one-time REST
// fetch at startup so ATR warm-up does not wait for live ticks. Bars must be
// ordered oldest first; any still-forming final bar should be excluded by the
// caller.
func (a *Aggregator) SeedClosed(bars []domain.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range bars {
		a.closed = append(a.closed, b)
		if len(a.closed) > MaxCandles {
			a.closed = a.closed[1:]
		}
	}
}

// Snapshot returns a copy of the closed history with the live forming candle
// appended, ready to feed into the indicator. Returns nil when no tick has
// been seen and nothing was seeded.
func (a *Aggregator) Snapshot() []domain.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.closed) == 0 && a.current == nil {
		return nil
	}
	out := make([]domain.Candle, len(a.closed), len(a.closed)+1)
	copy(out, a.closed)
	if a.current != nil {
		out = append(out, *a.current)
	}
	return out
}

// ClosedCount returns the number of frozen bars in history.
func (a *Aggregator) ClosedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.closed)
}

// Ready reports whether enough closed bars exist for the trailing-stop
// indicator to be reliable: at least atrPeriod+2.
func (a *Aggregator) Ready(atrPeriod int) bool {
	return a.ClosedCount() >= atrPeriod+2
}
