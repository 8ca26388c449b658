package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/candle"
	"github.com/rruehl/Kalshi-Bot-V5/internal/indicator"
)

const (
	pollInterval   = 500 * time.Millisecond
	forceRecompute = 5 * time.Second
)

// IndicatorParams yields the current tunables; re-read every iteration so
// config changes apply without a restart.
type IndicatorParams func() (atrPeriod int, sensitivity float64)

// IndicatorLoop samples the spot cache, feeds the candle aggregator, and
// republishes the indicator snapshot on every closed candle, or at the
// latest every 5 seconds.
type IndicatorLoop struct {
	cache  *SpotCache
	agg    *candle.Aggregator
	state  *indicator.State
	params IndicatorParams
	log    *slog.Logger
}

func NewIndicatorLoop(cache *SpotCache, agg *candle.Aggregator, state *indicator.State, params IndicatorParams, log *slog.Logger) *IndicatorLoop {
	return &IndicatorLoop{
		cache:  cache,
		agg:    agg,
		state:  state,
		params: params,
		log:    log.With("component", "indicator_loop"),
	}
}

// Run samples every 500ms until the context is cancelled.
func (l *IndicatorLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastCompute time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		price, at, ok := l.cache.Mid()
		if !ok {
			continue
		}

		closed := l.agg.Ingest(at.UnixMilli(), price)
		if !closed && time.Since(lastCompute) < forceRecompute {
			continue
		}

		atrPeriod, sensitivity := l.params()
		snap, ok := indicator.Compute(l.agg.Snapshot(), atrPeriod, sensitivity)
		lastCompute = time.Now()
		if !ok {
			continue // still warming up
		}
		l.state.Set(snap)

		if closed {
			l.log.Debug("candle closed",
				"signal", snap.Signal, "atr", snap.ATR, "stop", snap.Stop, "price", snap.Price)
		}
	}
}
