package domain

import (
	"context"
	"time"
)

// ActivityEvent names one kind of audit-trail row.
type ActivityEvent string

const (
	EventHeartbeat      ActivityEvent = "HRTBT"
	EventPaperBuy       ActivityEvent = "PAPER_BUY"
	EventLiveBuy        ActivityEvent = "LIVE_BUY"
	EventPayout         ActivityEvent = "PAYOUT"
	EventSettle         ActivityEvent = "SETTLE"
	EventSettleVerified ActivityEvent = "SETTLE_VERIFIED"
	EventError          ActivityEvent = "ERROR"
	EventMarketRoll     ActivityEvent = "MARKET_ROLL"
	EventFiltered       ActivityEvent = "FILTERED"
)

// Settlement provenance tags. A verified outcome came from the exchange's
// finalized result; a fallback outcome was approximated from the last
// observed spot price versus the strike.
const (
	SettlementVerified = "kalshi_verified"
	SettlementFallback = "spot_fallback"
)

// ActivityRow is one fixed-schema entry in the append-only audit trail. Every
// heartbeat and every decision outcome produces exactly one row. Fields not
// relevant to an event are left at their zero value.
type ActivityRow struct {
	// Identity
	Timestamp time.Time
	Event     ActivityEvent
	Mode      string

	// Market context
	Ticker      string
	Side        Side
	EntryPrice  int64
	Qty         int64
	TimeLeftMin float64
	SpotPrice   float64
	Strike      float64

	// Order book
	YesBid    int64
	NoBid     int64
	YesAsk    int64
	NoAsk     int64
	Spread    int64
	YesLiq    int64
	NoLiq     int64
	Imbalance float64

	// Risk
	Bankroll       float64
	Rolling24hLoss float64

	// Indicator
	Signal       Signal
	ATR          float64
	Stop         float64
	BirthTS      float64
	SignalAgeMin float64

	// Diagnostics
	BookStale    bool
	FilterReason string

	// Settlement
	SettlementSource string
	SpotAtSettlement float64
	TradePnL         float64

	Msg string
}

// ActivityLog is the append-only audit trail. Implementations must be safe
// for concurrent use: the decision loop and detached settlement tasks both
// append.
type ActivityLog interface {
	Append(ctx context.Context, row ActivityRow) error
}
