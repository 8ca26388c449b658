package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/audit"
	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
	"github.com/rruehl/Kalshi-Bot-V5/internal/platform/kalshi"
	"github.com/rruehl/Kalshi-Bot-V5/internal/risk"
)

// MarketStatusSource is the slice of the exchange client used to look up a
// finalized result.
type MarketStatusSource interface {
	GetMarket(ctx context.Context, ticker string) (kalshi.Market, error)
}

// SettlementTiming controls the reconciliation schedule.
type SettlementTiming struct {
	InitialDelay  time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

// Reconciler resolves an expired session: poll the exchange for the
// authoritative result, fall back to spot-versus-strike when none appears in
// time, and book the PnL for any position held into expiry. It runs detached
// from the decision loop; its failures are logged, never propagated.
type Reconciler struct {
	source MarketStatusSource
	risk   *risk.Engine
	rec    *audit.Recorder
	timing SettlementTiming
	log    *slog.Logger
}

func NewReconciler(source MarketStatusSource, riskEng *risk.Engine, rec *audit.Recorder, timing SettlementTiming, log *slog.Logger) *Reconciler {
	return &Reconciler{
		source: source,
		risk:   riskEng,
		rec:    rec,
		timing: timing,
		log:    log.With("component", "settlement"),
	}
}

// Settle reconciles one expired session. spotPrice is the spot observed at
// rollover, used both for the fallback outcome and for the settlement row.
// pos is the position held into expiry, nil when the session went untraded.
func (r *Reconciler) Settle(ctx context.Context, ticker string, spotPrice, strike float64, pos *domain.Position) {
	if !sleepCtx(ctx, r.timing.InitialDelay) {
		return
	}

	verified := r.pollResult(ctx, ticker)

	var outcomeYes bool
	source := domain.SettlementFallback
	switch verified {
	case "yes":
		outcomeYes = true
		source = domain.SettlementVerified
	case "no":
		outcomeYes = false
		source = domain.SettlementVerified
	default:
		outcomeYes = spotPrice > strike
	}

	if pos == nil {
		r.rec.Record(ctx, domain.ActivityRow{
			Event:            domain.EventSettleVerified,
			Ticker:           ticker,
			SettlementSource: source,
			SpotAtSettlement: spotPrice,
			Msg:              fmt.Sprintf("Market Roll: %s", strings.ToUpper(resultLabel(verified))),
		})
		return
	}

	won := (pos.Side == domain.SideYes && outcomeYes) || (pos.Side == domain.SideNo && !outcomeYes)
	cost := pos.Cost()

	// Each settlement row carries the full trade context so it is usable for
	// backtesting without joining against the entry row.
	row := domain.ActivityRow{
		Ticker:           ticker,
		Side:             pos.Side,
		EntryPrice:       pos.EntryPriceCents,
		Qty:              pos.Qty,
		Strike:           strike,
		SpotPrice:        spotPrice,
		SpotAtSettlement: spotPrice,
		SettlementSource: source,
		Signal:           pos.Signal,
		ATR:              pos.ATR,
		Stop:             pos.Stop,
		BirthTS:          pos.BirthTS,
		SignalAgeMin:     pos.SignalAgeMin,
	}

	if won {
		payout := float64(pos.Qty) * 1.00
		pnl := payout - cost
		r.risk.Credit(payout)
		r.risk.RecordPnL(ctx, pnl, time.Now())
		row.Event = domain.EventPayout
		row.TradePnL = pnl
		row.Msg = fmt.Sprintf("WIN! Payout: $%.2f | PnL: $%.4f", payout, pnl)
	} else {
		pnl := -cost
		r.risk.RecordPnL(ctx, pnl, time.Now())
		row.Event = domain.EventSettle
		row.TradePnL = pnl
		row.Msg = fmt.Sprintf("LOSS. Cost: $%.2f | PnL: $%.4f", cost, pnl)
	}
	r.rec.Record(ctx, row)
}

// pollResult polls for an authoritative result, returning "yes", "no", or ""
// after the retry budget is spent.
func (r *Reconciler) pollResult(ctx context.Context, ticker string) string {
	for i := 0; i < r.timing.MaxRetries; i++ {
		m, err := r.source.GetMarket(ctx, ticker)
		if err != nil {
			r.log.Warn("settlement poll failed", "ticker", ticker, "error", err)
		} else if m.Settled() {
			return strings.ToLower(m.Result)
		}
		if !sleepCtx(ctx, r.timing.RetryInterval) {
			return ""
		}
	}
	return ""
}

func resultLabel(verified string) string {
	if verified == "" {
		return "none"
	}
	return verified
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
