package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
	"github.com/rruehl/Kalshi-Bot-V5/internal/platform/kalshi"
)

// BookSource is the slice of the exchange client the feed needs.
type BookSource interface {
	GetSeriesMarkets(ctx context.Context, seriesTicker, status string) ([]kalshi.Market, error)
	GetOrderbook(ctx context.Context, ticker string, depth int) (kalshi.Orderbook, error)
}

const (
	bookDepth     = 25
	liquidityTopN = 5
)

// Feed polls the exchange for the active session in a series and publishes
// order-book observations into a Mailbox. The "active session" is the open
// market with the nearest future close; when one session expires the next
// one is picked up automatically, which is how the decision loop learns
// about rollovers.
type Feed struct {
	source   BookSource
	mailbox  *Mailbox
	series   string
	interval time.Duration
	errPause time.Duration
	log      *slog.Logger

	lastBookValid time.Time
}

func NewFeed(source BookSource, mailbox *Mailbox, series string, interval, errPause time.Duration, log *slog.Logger) *Feed {
	return &Feed{
		source:   source,
		mailbox:  mailbox,
		series:   series,
		interval: interval,
		errPause: errPause,
		log:      log.With("component", "market_feed"),
	}
}

// Run polls until the context is cancelled. A failed poll logs, pauses, and
// continues; the decision loop treats the resulting silence as staleness.
func (f *Feed) Run(ctx context.Context) error {
	f.log.Info("market feed started", "series", f.series, "interval", f.interval)

	for {
		tick, err := f.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn("market poll failed", "error", err)
			if !sleep(ctx, f.errPause) {
				return ctx.Err()
			}
			continue
		}

		f.mailbox.Put(tick)

		if !sleep(ctx, f.interval) {
			return ctx.Err()
		}
	}
}

func (f *Feed) poll(ctx context.Context) (domain.MarketTick, error) {
	m, err := f.activeMarket(ctx)
	if err != nil {
		return domain.MarketTick{}, err
	}

	ob, err := f.source.GetOrderbook(ctx, m.Ticker, bookDepth)
	if err != nil {
		return domain.MarketTick{}, err
	}

	now := time.Now()
	if len(ob.YesBids) > 0 || len(ob.NoBids) > 0 {
		f.lastBookValid = now
	}
	return buildTick(m, ob, now, f.lastBookValid), nil
}

// activeMarket picks the open market in the series with the nearest future
// close time.
func (f *Feed) activeMarket(ctx context.Context) (kalshi.Market, error) {
	markets, err := f.source.GetSeriesMarkets(ctx, f.series, "open")
	if err != nil {
		return kalshi.Market{}, err
	}

	now := time.Now()
	var picked kalshi.Market
	for _, m := range markets {
		if !m.CloseTime.After(now) {
			continue
		}
		if picked.Ticker == "" || m.CloseTime.Before(picked.CloseTime) {
			picked = m
		}
	}
	if picked.Ticker == "" {
		return kalshi.Market{}, fmt.Errorf("market: no open market with a future close in series %s: %w",
			f.series, domain.ErrNoMarketData)
	}
	return picked, nil
}

// buildTick derives the decision loop's view of the book. Kalshi books only
// carry bids; the ask for one side is implied by the best bid on the other
// (yes ask = 100 - best no bid), falling back to 99 when that side is empty.
func buildTick(m kalshi.Market, ob kalshi.Orderbook, now, lastBookValid time.Time) domain.MarketTick {
	tick := domain.MarketTick{
		Ticker:      m.Ticker,
		Strike:      m.FloorStrike,
		MinutesLeft: m.CloseTime.Sub(now).Minutes(),
		YesAsk:      99,
		NoAsk:       99,
		BookValidAt: lastBookValid,
		ObservedAt:  now,
	}

	if bid, ok := ob.BestYesBid(); ok {
		tick.YesBid = bid.Price
		tick.NoAsk = 100 - bid.Price
	}
	if bid, ok := ob.BestNoBid(); ok {
		tick.NoBid = bid.Price
		tick.YesAsk = 100 - bid.Price
	}

	tick.YesLiq = kalshi.TopLiquidity(ob.YesBids, liquidityTopN)
	tick.NoLiq = kalshi.TopLiquidity(ob.NoBids, liquidityTopN)
	if total := tick.YesLiq + tick.NoLiq; total > 0 {
		tick.Imbalance = float64(tick.YesLiq-tick.NoLiq) / float64(total)
	}
	return tick
}

// sleep waits for d or the context, reporting false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
