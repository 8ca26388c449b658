package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rruehl/Kalshi-Bot-V5/internal/candle"
	"github.com/rruehl/Kalshi-Bot-V5/internal/feed"
	"github.com/rruehl/Kalshi-Bot-V5/internal/indicator"
	"github.com/rruehl/Kalshi-Bot-V5/internal/market"
	"github.com/rruehl/Kalshi-Bot-V5/internal/platform/coinbase"
	"github.com/rruehl/Kalshi-Bot-V5/internal/risk"
	"github.com/rruehl/Kalshi-Bot-V5/internal/strategy"
)

const (
	// marketPollInterval paces order-book polling for the active session.
	marketPollInterval = 500 * time.Millisecond
	// marketErrPause backs off after a failed book poll.
	marketErrPause = 2 * time.Second
	// configReloadInterval paces background re-reads of the TOML file.
	configReloadInterval = 30 * time.Second
)

// RunBot starts every long-running loop and blocks until the context is
// cancelled or one of the loops fails.
func (a *App) RunBot(ctx context.Context, deps *Dependencies) error {
	cfg := a.provider.Get()

	// Live mode trades the real exchange balance, not a paper number.
	if !cfg.Paper() {
		balance, err := deps.Kalshi.GetBalance(ctx)
		if err != nil {
			return fmt.Errorf("app: sync exchange balance: %w", err)
		}
		deps.Risk.SetBankroll(balance)
		a.logger.InfoContext(ctx, "exchange balance synced", slog.Float64("balance", balance))
	}

	agg := candle.NewAggregator()
	a.seedCandles(ctx, cfg.Spot.RestURL, cfg.Spot.ProductID, cfg.Spot.SeedCandles, agg)

	indState := indicator.NewState()
	spotCache := feed.NewSpotCache()
	mailbox := market.NewMailbox()

	indicatorParams := func() (int, float64) {
		c := a.provider.Get()
		return c.Strategy.AtrPeriod, c.Strategy.Sensitivity
	}
	strategyParams := func() strategy.Params {
		c := a.provider.Get()
		return strategy.Params{
			MaxFillsPerSession: c.Strategy.MaxFillsPerSession,
			MaxStalkMin:        c.Strategy.MaxStalkMin,
			MinMinutesLeft:     c.Strategy.MinMinutesLeft,
			StaleAfter:         c.Strategy.BookStaleAfter.Duration,
			VetoPriceCents:     c.Strategy.VetoPriceCents,
			MaxEntryPriceCents: c.Strategy.MaxEntryPriceCents,
			Risk: risk.Limits{
				MaxDailyLoss: c.Risk.MaxDailyLoss,
				FlatFraction: c.Risk.FlatFraction,
				MaxContracts: c.Risk.MaxContracts,
			},
		}
	}

	controller := strategy.NewController(
		deps.Kalshi, indState, spotCache, deps.Risk, deps.Dedup, deps.Recorder,
		strategyParams, cfg.Paper(), deps.ActedBirthTS, a.logger,
	)
	reconciler := strategy.NewReconciler(deps.Kalshi, deps.Risk, deps.Recorder,
		strategy.SettlementTiming{
			InitialDelay:  cfg.Settlement.InitialDelay.Duration,
			RetryInterval: cfg.Settlement.RetryInterval.Duration,
			MaxRetries:    cfg.Settlement.MaxRetries,
		}, a.logger)

	spotFeed := feed.NewSpotFeed(cfg.Spot.WsURL, cfg.Spot.ProductID, spotCache, a.logger)
	indicatorLoop := feed.NewIndicatorLoop(spotCache, agg, indState, indicatorParams, a.logger)
	marketFeed := market.NewFeed(deps.Kalshi, mailbox, cfg.Kalshi.SeriesTicker,
		marketPollInterval, marketErrPause, a.logger)
	decisionLoop := strategy.NewDecisionLoop(mailbox, controller, reconciler,
		spotCache, deps.Recorder, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return spotFeed.Run(ctx) })
	g.Go(func() error { return indicatorLoop.Run(ctx) })
	g.Go(func() error { return marketFeed.Run(ctx) })
	g.Go(func() error { return decisionLoop.Run(ctx) })
	g.Go(func() error { return a.provider.Watch(ctx, configReloadInterval) })
	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(ctx) })
	}

	return g.Wait()
}

// seedCandles backfills the aggregator with recent closed minute bars so the
// indicator is usable right after startup instead of after a ten-plus minute
// warmup. A failed backfill is logged; the bot then warms up from live ticks.
func (a *App) seedCandles(ctx context.Context, restURL, productID string, limit int, agg *candle.Aggregator) {
	if restURL == "" || limit <= 0 {
		return
	}
	bars, err := coinbase.NewRESTClient(restURL).GetMinuteCandles(ctx, productID, limit)
	if err != nil {
		a.logger.WarnContext(ctx, "candle backfill failed, warming up from live ticks",
			slog.String("error", err.Error()))
		return
	}
	agg.SeedClosed(bars)
	a.logger.InfoContext(ctx, "candle history seeded", slog.Int("bars", len(bars)))
}
