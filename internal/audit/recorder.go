package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// RiskReader is the slice of the risk engine the recorder reads per row.
type RiskReader interface {
	Bankroll() float64
	Rolling24hLoss(now time.Time) float64
}

// Recorder stamps the fields shared by every activity row (timestamp, mode,
// bankroll, rolling loss, spread) and forwards to the configured sink. Sink
// failures are logged and swallowed: a broken audit trail must never stop
// trading.
type Recorder struct {
	sink domain.ActivityLog
	risk RiskReader
	mode string
	log  *slog.Logger
}

func NewRecorder(sink domain.ActivityLog, risk RiskReader, mode string, log *slog.Logger) *Recorder {
	return &Recorder{
		sink: sink,
		risk: risk,
		mode: mode,
		log:  log.With("component", "audit"),
	}
}

// Record fills in the shared fields and appends the row.
func (r *Recorder) Record(ctx context.Context, row domain.ActivityRow) {
	now := time.Now()
	if row.Timestamp.IsZero() {
		row.Timestamp = now
	}
	row.Mode = r.mode
	row.Bankroll = r.risk.Bankroll()
	row.Rolling24hLoss = r.risk.Rolling24hLoss(now)
	row.Spread = spreadCents(row)

	if err := r.sink.Append(ctx, row); err != nil {
		r.log.Warn("activity append failed", "event", row.Event, "error", err)
	}
}

// spreadCents is ask minus bid on the traded side, defaulting to the yes
// spread when no side is set. Zero when the relevant bid is absent.
func spreadCents(r domain.ActivityRow) int64 {
	switch r.Side {
	case domain.SideNo:
		if r.NoBid > 0 {
			return r.NoAsk - r.NoBid
		}
	default:
		if r.YesBid > 0 {
			return r.YesAsk - r.YesBid
		}
	}
	return 0
}
