package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rruehl/Kalshi-Bot-V5/internal/audit"
	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
	"github.com/rruehl/Kalshi-Bot-V5/internal/feed"
	"github.com/rruehl/Kalshi-Bot-V5/internal/market"
)

// DecisionLoop consumes market ticks from the mailbox, detects session
// rollovers, and drives the controller. Settlement of the previous session
// runs detached so the loop never blocks on it.
type DecisionLoop struct {
	mailbox    *market.Mailbox
	ctrl       *Controller
	reconciler *Reconciler
	spot       *feed.SpotCache
	rec        *audit.Recorder
	log        *slog.Logger

	prevTicker string
	prevStrike float64
}

func NewDecisionLoop(mailbox *market.Mailbox, ctrl *Controller, reconciler *Reconciler, spot *feed.SpotCache, rec *audit.Recorder, log *slog.Logger) *DecisionLoop {
	return &DecisionLoop{
		mailbox:    mailbox,
		ctrl:       ctrl,
		reconciler: reconciler,
		spot:       spot,
		rec:        rec,
		log:        log.With("component", "decision_loop"),
	}
}

// Run processes ticks until the context is cancelled.
func (d *DecisionLoop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.mailbox.Updated():
		}

		tick, ok := d.mailbox.Latest()
		if !ok {
			continue
		}

		if d.prevTicker != "" && tick.Ticker != d.prevTicker {
			d.rollover(ctx, tick)
		}
		d.prevTicker = tick.Ticker
		d.prevStrike = tick.Strike

		d.ctrl.OnTick(ctx, tick)
	}
}

// rollover hands the expiring session to the settlement reconciler. The
// dedup record is intentionally left intact so the signal that traded the
// old session cannot re-enter the new one.
func (d *DecisionLoop) rollover(ctx context.Context, next domain.MarketTick) {
	pos := d.ctrl.TakePosition()
	spotPrice, _, _ := d.spot.Mid()

	d.log.Info("session rollover",
		"from", d.prevTicker, "to", next.Ticker, "had_position", pos != nil)
	d.rec.Record(ctx, domain.ActivityRow{
		Event:  domain.EventMarketRoll,
		Ticker: d.prevTicker,
		Msg:    fmt.Sprintf("Roll to %s", next.Ticker),
	})

	// Detached: settlement outlives the tick and survives loop shutdown
	// being requested, up to process exit.
	go d.reconciler.Settle(context.WithoutCancel(ctx), d.prevTicker, spotPrice, d.prevStrike, pos)
}
