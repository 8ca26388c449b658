// Package strategy holds the decision engine: the gated entry controller and
// the settlement reconciler.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rruehl/Kalshi-Bot-V5/internal/audit"
	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
	"github.com/rruehl/Kalshi-Bot-V5/internal/feed"
	"github.com/rruehl/Kalshi-Bot-V5/internal/indicator"
	"github.com/rruehl/Kalshi-Bot-V5/internal/platform/kalshi"
	"github.com/rruehl/Kalshi-Bot-V5/internal/risk"
	"github.com/rruehl/Kalshi-Bot-V5/internal/state"
)

const heartbeatEvery = 10 * time.Second

// unknownSignalAge stands in when no signal flip has ever been observed; it
// is old enough to fail the stalk-window gate.
const unknownSignalAge = 999.0

// OrderPlacer is the slice of the exchange client used for entries.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, order kalshi.OrderRequest) (kalshi.Order, error)
}

// Params are the runtime-tunable strategy knobs, re-read on every tick.
type Params struct {
	MaxFillsPerSession int
	MaxStalkMin        float64 // max minutes since signal birth
	MinMinutesLeft     float64 // no entries closer to expiry than this
	StaleAfter         time.Duration
	VetoPriceCents     int64
	MaxEntryPriceCents int64
	Risk               risk.Limits
}

// Action classifies one tick's outcome.
type Action string

const (
	ActionNone     Action = "none"     // silent skip
	ActionFiltered Action = "filtered" // skipped with a diagnostic reason
	ActionEntered  Action = "entered"
)

// Decision reports what one tick did, mainly for tests and debug logging.
type Decision struct {
	Action Action
	Reason string
	Side   domain.Side
	Price  int64
	Qty    int64
}

// Controller implements the temporal-stalker entry logic: wait for a fresh
// trend flip, then enter once per signal and at most once per session, as a
// maker, inside the configured price band.
type Controller struct {
	orders OrderPlacer
	ind    *indicator.State
	spot   *feed.SpotCache
	risk   *risk.Engine
	dedup  *state.DedupStore
	rec    *audit.Recorder
	params func() Params
	log    *slog.Logger

	paperMode bool

	mu            sync.Mutex
	position      *domain.Position
	sessionFills  int
	actedBirthTS  *float64
	lastHeartbeat time.Time
	lastReason    string
}

// NewController wires the controller. actedBirthTS is the dedup record loaded
// at startup, nil for a fresh start.
func NewController(
	orders OrderPlacer,
	ind *indicator.State,
	spot *feed.SpotCache,
	riskEng *risk.Engine,
	dedup *state.DedupStore,
	rec *audit.Recorder,
	params func() Params,
	paperMode bool,
	actedBirthTS *float64,
	log *slog.Logger,
) *Controller {
	return &Controller{
		orders:       orders,
		ind:          ind,
		spot:         spot,
		risk:         riskEng,
		dedup:        dedup,
		rec:          rec,
		params:       params,
		paperMode:    paperMode,
		actedBirthTS: actedBirthTS,
		log:          log.With("component", "strategy"),
	}
}

// TakePosition detaches and returns the open position, leaving none. Called
// by the decision loop at session rollover before handing the position to
// the settlement reconciler; also resets the per-session fill counter. The
// dedup record deliberately survives rollover so the same signal cannot be
// re-entered in the new session.
func (c *Controller) TakePosition() *domain.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos := c.position
	c.position = nil
	c.sessionFills = 0
	return pos
}

// OnTick runs the full gate sequence for one market observation.
func (c *Controller) OnTick(ctx context.Context, tick domain.MarketTick) Decision {
	now := time.Now()
	p := c.params()

	snap, haveSignal := c.ind.Get()
	spotPrice, _, haveSpot := c.spot.Mid()
	if !haveSpot {
		spotPrice = snap.Price
	}

	signalAgeMin := unknownSignalAge
	if snap.BirthTS > 0 {
		signalAgeMin = (float64(now.Unix()) - snap.BirthTS) / 60.0
	}
	bookStale := tick.BookValidAt.IsZero() || now.Sub(tick.BookValidAt) > p.StaleAfter

	row := domain.ActivityRow{
		Ticker:       tick.Ticker,
		TimeLeftMin:  tick.MinutesLeft,
		SpotPrice:    spotPrice,
		Strike:       tick.Strike,
		YesBid:       tick.YesBid,
		NoBid:        tick.NoBid,
		YesAsk:       tick.YesAsk,
		NoAsk:        tick.NoAsk,
		YesLiq:       tick.YesLiq,
		NoLiq:        tick.NoLiq,
		Imbalance:    tick.Imbalance,
		Signal:       snap.Signal,
		ATR:          snap.ATR,
		Stop:         snap.Stop,
		BirthTS:      snap.BirthTS,
		SignalAgeMin: signalAgeMin,
		BookStale:    bookStale,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastHeartbeat) > heartbeatEvery {
		hb := row
		hb.Event = domain.EventHeartbeat
		c.rec.Record(ctx, hb)
		c.lastHeartbeat = now
	}

	// Gate sequence, first failure wins. The first two are silent: a session
	// that already traded produces no log noise.
	if c.sessionFills >= p.MaxFillsPerSession {
		return c.skip(ctx, row, "", true)
	}
	if c.position != nil {
		return c.skip(ctx, row, "", true)
	}
	if !haveSignal {
		return c.skip(ctx, row, "indicator_warmup", false)
	}
	if c.actedBirthTS != nil && *c.actedBirthTS == snap.BirthTS {
		return c.skip(ctx, row, "already_acted_this_signal", false)
	}
	if signalAgeMin > p.MaxStalkMin {
		return c.skip(ctx, row, fmt.Sprintf("signal_too_old_%.1fm", signalAgeMin), false)
	}
	if tick.MinutesLeft < p.MinMinutesLeft {
		return c.skip(ctx, row, fmt.Sprintf("too_close_to_expiry_%.1fm", tick.MinutesLeft), false)
	}
	if bookStale {
		return c.skip(ctx, row, "orderbook_stale", false)
	}

	side := domain.SideYes
	bestBid, bestAsk := tick.YesBid, tick.YesAsk
	if snap.Signal != domain.SignalBuy {
		side = domain.SideNo
		bestBid, bestAsk = tick.NoBid, tick.NoAsk
	}
	price := makerPrice(bestBid, bestAsk)

	row.Side = side
	row.EntryPrice = price

	if price < p.VetoPriceCents || price > p.MaxEntryPriceCents {
		return c.skip(ctx, row, fmt.Sprintf("price_out_of_range_%dc", price), false)
	}

	qty := c.risk.CalculateQty(price, p.Risk, now)
	if qty < 1 {
		return c.skip(ctx, row, "qty_zero_insufficient_bankroll", false)
	}
	row.Qty = qty

	return c.commit(ctx, tick, row, snap, side, price, qty, signalAgeMin, now)
}

// commit persists the dedup record, then places the order. The write-first
// order is load-bearing: a crash between the two forfeits the trade instead
// of risking a duplicate entry after restart.
func (c *Controller) commit(
	ctx context.Context,
	tick domain.MarketTick,
	row domain.ActivityRow,
	snap domain.IndicatorSnapshot,
	side domain.Side,
	price, qty int64,
	signalAgeMin float64,
	now time.Time,
) Decision {
	birth := snap.BirthTS
	c.actedBirthTS = &birth
	if err := c.dedup.Save(&birth); err != nil {
		// Without the durable record the at-most-once guarantee is gone, so
		// the entry is abandoned rather than submitted.
		c.actedBirthTS = nil
		row.Event = domain.EventError
		row.Msg = fmt.Sprintf("dedup persist failed, entry abandoned: %v", err)
		c.rec.Record(ctx, row)
		return Decision{Action: ActionFiltered, Reason: "dedup_persist_failed"}
	}
	c.sessionFills++

	pos := &domain.Position{
		Ticker:          tick.Ticker,
		Side:            side,
		Qty:             qty,
		EntryPriceCents: price,
		Signal:          snap.Signal,
		ATR:             snap.ATR,
		Stop:            snap.Stop,
		BirthTS:         snap.BirthTS,
		SignalAgeMin:    signalAgeMin,
		OpenedAt:        now,
	}

	if c.paperMode {
		c.risk.Debit(pos.Cost())
		c.position = pos
		row.Event = domain.EventPaperBuy
		row.Msg = fmt.Sprintf("STALKER FILL: Age %.1fm | %s @ %dc x%d", signalAgeMin, side, price, qty)
		c.rec.Record(ctx, row)
		c.lastReason = ""
		return Decision{Action: ActionEntered, Side: side, Price: price, Qty: qty}
	}

	order := kalshi.OrderRequest{
		Ticker:        tick.Ticker,
		ClientOrderID: uuid.NewString(),
		Action:        "buy",
		Side:          string(side),
		Type:          "limit",
		Count:         qty,
	}
	if side == domain.SideYes {
		order.YesPrice = &price
	} else {
		order.NoPrice = &price
	}

	if _, err := c.orders.CreateOrder(ctx, order); err != nil {
		// Roll back so the signal stays eligible within the stalk window.
		c.sessionFills--
		c.actedBirthTS = nil
		if saveErr := c.dedup.Save(nil); saveErr != nil {
			c.log.Error("dedup rollback persist failed", "error", saveErr)
		}
		row.Event = domain.EventError
		row.Msg = fmt.Sprintf("Order failed: %v", err)
		c.rec.Record(ctx, row)
		return Decision{Action: ActionFiltered, Reason: "order_failed"}
	}

	c.position = pos
	row.Event = domain.EventLiveBuy
	row.Msg = fmt.Sprintf("STALKER LIVE: Age %.1fm | %s @ %dc x%d", signalAgeMin, side, price, qty)
	c.rec.Record(ctx, row)
	c.lastReason = ""
	return Decision{Action: ActionEntered, Side: side, Price: price, Qty: qty}
}

// skip records a FILTERED row when the reason changed since the last tick;
// at two ticks per second an unchanged reason would flood the trail.
func (c *Controller) skip(ctx context.Context, row domain.ActivityRow, reason string, silent bool) Decision {
	if silent {
		c.lastReason = ""
		return Decision{Action: ActionNone}
	}
	if reason != c.lastReason {
		row.Event = domain.EventFiltered
		row.FilterReason = reason
		c.rec.Record(ctx, row)
		c.lastReason = reason
	}
	return Decision{Action: ActionFiltered, Reason: reason}
}

// makerPrice joins the bid, or improves it by one cent when there is room
// below the ask. Clamped to the exchange's 1-99 cent band.
func makerPrice(bestBid, bestAsk int64) int64 {
	p := bestBid
	if bestAsk > bestBid+1 {
		p = bestBid + 1
	}
	if p < 1 {
		p = 1
	}
	if p > 99 {
		p = 99
	}
	return p
}
