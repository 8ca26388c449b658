package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/audit"
	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
	"github.com/rruehl/Kalshi-Bot-V5/internal/feed"
	"github.com/rruehl/Kalshi-Bot-V5/internal/indicator"
	"github.com/rruehl/Kalshi-Bot-V5/internal/platform/kalshi"
	"github.com/rruehl/Kalshi-Bot-V5/internal/risk"
	"github.com/rruehl/Kalshi-Bot-V5/internal/state"
)

type captureSink struct {
	mu   sync.Mutex
	rows []domain.ActivityRow
}

func (c *captureSink) Append(_ context.Context, row domain.ActivityRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, row)
	return nil
}

func (c *captureSink) byEvent(ev domain.ActivityEvent) []domain.ActivityRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.ActivityRow
	for _, r := range c.rows {
		if r.Event == ev {
			out = append(out, r)
		}
	}
	return out
}

type fakePlacer struct {
	mu     sync.Mutex
	orders []kalshi.OrderRequest
	err    error
}

func (f *fakePlacer) CreateOrder(_ context.Context, order kalshi.OrderRequest) (kalshi.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kalshi.Order{}, f.err
	}
	f.orders = append(f.orders, order)
	return kalshi.Order{OrderID: "ord-1", Status: "resting"}, nil
}

func testParams() Params {
	return Params{
		MaxFillsPerSession: 1,
		MaxStalkMin:        10,
		MinMinutesLeft:     1,
		StaleAfter:         10 * time.Second,
		VetoPriceCents:     30,
		MaxEntryPriceCents: 75,
		Risk:               risk.Limits{MaxDailyLoss: 1_000_000, FlatFraction: 0.02, MaxContracts: 250},
	}
}

type harness struct {
	ctrl   *Controller
	ind    *indicator.State
	spot   *feed.SpotCache
	risk   *risk.Engine
	dedup  *state.DedupStore
	sink   *captureSink
	placer *fakePlacer
}

func newHarness(t *testing.T, paperMode bool, acted *float64) *harness {
	t.Helper()
	disc := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		ind:    indicator.NewState(),
		spot:   feed.NewSpotCache(),
		risk:   risk.NewEngine(1000, nil, disc),
		dedup:  state.NewDedupStore(filepath.Join(t.TempDir(), "dedup.json")),
		sink:   &captureSink{},
		placer: &fakePlacer{},
	}
	mode := "PAPER"
	if !paperMode {
		mode = "LIVE"
	}
	rec := audit.NewRecorder(h.sink, h.risk, mode, disc)
	h.ctrl = NewController(h.placer, h.ind, h.spot, h.risk, h.dedup, rec, testParams, paperMode, acted, disc)
	return h
}

// freshSignal publishes a 2-minute-old buy signal and a live spot quote.
func (h *harness) freshSignal(sig domain.Signal) domain.IndicatorSnapshot {
	snap := domain.IndicatorSnapshot{
		Signal:  sig,
		ATR:     55,
		Stop:    64_050,
		Price:   64_120,
		BirthTS: float64(time.Now().Add(-2 * time.Minute).Unix()),
	}
	h.ind.Set(snap)
	h.spot.Update(64_119, 64_121, time.Now())
	return snap
}

func goodTick() domain.MarketTick {
	now := time.Now()
	return domain.MarketTick{
		Ticker:      "KXBTC15M-26AUG311230",
		Strike:      64_000,
		MinutesLeft: 9,
		YesBid:      40, NoBid: 55, YesAsk: 45, NoAsk: 60,
		YesLiq: 100, NoLiq: 80,
		BookValidAt: now,
		ObservedAt:  now,
	}
}

func TestMakerPrice(t *testing.T) {
	cases := []struct {
		bid, ask, want int64
	}{
		{40, 45, 41}, // room below the ask, improve by one
		{40, 41, 40}, // no room, join the bid
		{0, 99, 1},   // empty side, floor of the band
		{0, 1, 1},    // clamped up
		{99, 100, 99},
	}
	for _, tc := range cases {
		if got := makerPrice(tc.bid, tc.ask); got != tc.want {
			t.Errorf("makerPrice(%d, %d) = %d, want %d", tc.bid, tc.ask, got, tc.want)
		}
	}
}

func TestPaperEntry(t *testing.T) {
	h := newHarness(t, true, nil)
	snap := h.freshSignal(domain.SignalBuy)

	d := h.ctrl.OnTick(context.Background(), goodTick())
	if d.Action != ActionEntered {
		t.Fatalf("decision = %+v, want entered", d)
	}
	if d.Side != domain.SideYes || d.Price != 41 {
		t.Errorf("side/price = %s/%d, want yes/41", d.Side, d.Price)
	}
	// $20 risk budget at 41c buys 48 contracts.
	if d.Qty != 48 {
		t.Errorf("qty = %d, want 48", d.Qty)
	}
	if got, want := h.risk.Bankroll(), 1000-19.68; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("bankroll = %v, want %v", got, want)
	}

	buys := h.sink.byEvent(domain.EventPaperBuy)
	if len(buys) != 1 {
		t.Fatalf("PAPER_BUY rows = %d, want 1", len(buys))
	}
	if buys[0].EntryPrice != 41 || buys[0].Qty != 48 || buys[0].Side != domain.SideYes {
		t.Errorf("buy row = %+v", buys[0])
	}

	// Dedup record persisted with the signal birth.
	got, err := h.dedup.Load()
	if err != nil {
		t.Fatalf("dedup load: %v", err)
	}
	if got == nil || *got != snap.BirthTS {
		t.Errorf("dedup = %v, want %v", got, snap.BirthTS)
	}
}

func TestSellSignalEntersNoSide(t *testing.T) {
	h := newHarness(t, true, nil)
	h.freshSignal(domain.SignalSell)

	d := h.ctrl.OnTick(context.Background(), goodTick())
	if d.Action != ActionEntered || d.Side != domain.SideNo {
		t.Fatalf("decision = %+v, want entered on no side", d)
	}
	// No-side maker price: bid 55, ask 60 -> 56.
	if d.Price != 56 {
		t.Errorf("price = %d, want 56", d.Price)
	}
}

func TestSilentGates(t *testing.T) {
	h := newHarness(t, true, nil)
	h.freshSignal(domain.SignalBuy)

	// First entry consumes the session's single fill.
	if d := h.ctrl.OnTick(context.Background(), goodTick()); d.Action != ActionEntered {
		t.Fatalf("first tick = %+v", d)
	}
	// Next tick is silenced: fills exhausted (and a position is open).
	d := h.ctrl.OnTick(context.Background(), goodTick())
	if d.Action != ActionNone || d.Reason != "" {
		t.Errorf("decision = %+v, want silent none", d)
	}
	if rows := h.sink.byEvent(domain.EventFiltered); len(rows) != 0 {
		t.Errorf("FILTERED rows = %d, want 0 for silent gates", len(rows))
	}
}

func TestGateReasons(t *testing.T) {
	now := time.Now()

	t.Run("already acted", func(t *testing.T) {
		h := newHarness(t, true, nil)
		snap := h.freshSignal(domain.SignalBuy)
		acted := snap.BirthTS
		h2 := newHarness(t, true, &acted)
		h2.ind.Set(snap)
		h2.spot.Update(64_119, 64_121, now)

		d := h2.ctrl.OnTick(context.Background(), goodTick())
		if d.Action != ActionFiltered || d.Reason != "already_acted_this_signal" {
			t.Errorf("decision = %+v", d)
		}
	})

	t.Run("signal too old", func(t *testing.T) {
		h := newHarness(t, true, nil)
		snap := h.freshSignal(domain.SignalBuy)
		snap.BirthTS = float64(now.Add(-11 * time.Minute).Unix())
		h.ind.Set(snap)

		d := h.ctrl.OnTick(context.Background(), goodTick())
		if d.Action != ActionFiltered || d.Reason != "signal_too_old_11.0m" {
			t.Errorf("decision = %+v", d)
		}
	})

	t.Run("too close to expiry", func(t *testing.T) {
		h := newHarness(t, true, nil)
		h.freshSignal(domain.SignalBuy)
		tick := goodTick()
		tick.MinutesLeft = 0.5

		d := h.ctrl.OnTick(context.Background(), tick)
		if d.Action != ActionFiltered || d.Reason != "too_close_to_expiry_0.5m" {
			t.Errorf("decision = %+v", d)
		}
	})

	t.Run("stale book", func(t *testing.T) {
		h := newHarness(t, true, nil)
		h.freshSignal(domain.SignalBuy)
		tick := goodTick()
		tick.BookValidAt = now.Add(-30 * time.Second)

		d := h.ctrl.OnTick(context.Background(), tick)
		if d.Action != ActionFiltered || d.Reason != "orderbook_stale" {
			t.Errorf("decision = %+v", d)
		}
	})

	t.Run("price above band", func(t *testing.T) {
		h := newHarness(t, true, nil)
		h.freshSignal(domain.SignalBuy)
		tick := goodTick()
		tick.YesBid, tick.YesAsk = 80, 85

		d := h.ctrl.OnTick(context.Background(), tick)
		if d.Action != ActionFiltered || d.Reason != "price_out_of_range_81c" {
			t.Errorf("decision = %+v", d)
		}
	})

	t.Run("price below veto", func(t *testing.T) {
		h := newHarness(t, true, nil)
		h.freshSignal(domain.SignalBuy)
		tick := goodTick()
		tick.YesBid, tick.YesAsk = 10, 15

		d := h.ctrl.OnTick(context.Background(), tick)
		if d.Action != ActionFiltered || d.Reason != "price_out_of_range_11c" {
			t.Errorf("decision = %+v", d)
		}
	})

	t.Run("bankroll exhausted", func(t *testing.T) {
		h := newHarness(t, true, nil)
		h.freshSignal(domain.SignalBuy)
		h.risk.SetBankroll(5) // 2% of $5 cannot buy one 41c contract

		d := h.ctrl.OnTick(context.Background(), goodTick())
		if d.Action != ActionFiltered || d.Reason != "qty_zero_insufficient_bankroll" {
			t.Errorf("decision = %+v", d)
		}
	})

	t.Run("indicator warmup", func(t *testing.T) {
		h := newHarness(t, true, nil)
		h.spot.Update(64_119, 64_121, now)

		d := h.ctrl.OnTick(context.Background(), goodTick())
		if d.Action != ActionFiltered || d.Reason != "indicator_warmup" {
			t.Errorf("decision = %+v", d)
		}
	})
}

func TestFilteredRowOnlyOnReasonChange(t *testing.T) {
	h := newHarness(t, true, nil)
	h.freshSignal(domain.SignalBuy)
	tick := goodTick()
	tick.BookValidAt = time.Now().Add(-time.Minute)

	for i := 0; i < 5; i++ {
		h.ctrl.OnTick(context.Background(), tick)
	}
	if rows := h.sink.byEvent(domain.EventFiltered); len(rows) != 1 {
		t.Fatalf("FILTERED rows = %d, want 1 for a repeated reason", len(rows))
	}

	// Reason changes once the book freshens but the price band fails.
	tick.BookValidAt = time.Now()
	tick.YesBid, tick.YesAsk = 80, 85
	h.ctrl.OnTick(context.Background(), tick)

	rows := h.sink.byEvent(domain.EventFiltered)
	if len(rows) != 2 {
		t.Fatalf("FILTERED rows = %d, want 2 after reason change", len(rows))
	}
	if rows[1].FilterReason != "price_out_of_range_81c" {
		t.Errorf("second reason = %q", rows[1].FilterReason)
	}
}

func TestHeartbeatCadence(t *testing.T) {
	h := newHarness(t, true, nil)
	h.freshSignal(domain.SignalBuy)
	tick := goodTick()

	h.ctrl.OnTick(context.Background(), tick)
	h.ctrl.OnTick(context.Background(), tick) // within 10s, no second heartbeat

	if rows := h.sink.byEvent(domain.EventHeartbeat); len(rows) != 1 {
		t.Errorf("HRTBT rows = %d, want 1", len(rows))
	}
}

func TestDedupSurvivesRestart(t *testing.T) {
	h := newHarness(t, true, nil)
	snap := h.freshSignal(domain.SignalBuy)

	if d := h.ctrl.OnTick(context.Background(), goodTick()); d.Action != ActionEntered {
		t.Fatalf("entry failed: %+v", d)
	}

	// Simulated restart: reload the dedup record from h's file into a brand
	// new controller with no session state.
	acted, err := h.dedup.Load()
	if err != nil {
		t.Fatalf("dedup load: %v", err)
	}
	h2 := newHarness(t, true, acted)
	h2.ind.Set(snap)
	h2.spot.Update(64_119, 64_121, time.Now())

	d := h2.ctrl.OnTick(context.Background(), goodTick())
	if d.Action != ActionFiltered || d.Reason != "already_acted_this_signal" {
		t.Errorf("post-restart decision = %+v, want already_acted_this_signal", d)
	}
}

func TestLiveEntrySubmitsLimitOrder(t *testing.T) {
	h := newHarness(t, false, nil)
	h.freshSignal(domain.SignalBuy)

	d := h.ctrl.OnTick(context.Background(), goodTick())
	if d.Action != ActionEntered {
		t.Fatalf("decision = %+v", d)
	}

	if len(h.placer.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(h.placer.orders))
	}
	o := h.placer.orders[0]
	if o.Type != "limit" || o.Action != "buy" || o.Side != "yes" || o.Count != 48 {
		t.Errorf("order = %+v", o)
	}
	if o.YesPrice == nil || *o.YesPrice != 41 {
		t.Errorf("yes price = %v, want 41", o.YesPrice)
	}
	if o.ClientOrderID == "" {
		t.Error("client order id must be set for idempotent submission")
	}
	if rows := h.sink.byEvent(domain.EventLiveBuy); len(rows) != 1 {
		t.Errorf("LIVE_BUY rows = %d, want 1", len(rows))
	}
	// Live mode does not debit locally; the exchange balance is authoritative.
	if got := h.risk.Bankroll(); got != 1000 {
		t.Errorf("bankroll = %v, want untouched 1000", got)
	}
}

func TestLiveOrderFailureRollsBack(t *testing.T) {
	h := newHarness(t, false, nil)
	h.freshSignal(domain.SignalBuy)
	h.placer.err = errors.New("insufficient balance")

	d := h.ctrl.OnTick(context.Background(), goodTick())
	if d.Action != ActionFiltered || d.Reason != "order_failed" {
		t.Fatalf("decision = %+v", d)
	}
	if rows := h.sink.byEvent(domain.EventError); len(rows) != 1 {
		t.Errorf("ERROR rows = %d, want 1", len(rows))
	}

	// Dedup rolled back to null on disk: the signal stays eligible.
	acted, err := h.dedup.Load()
	if err != nil {
		t.Fatalf("dedup load: %v", err)
	}
	if acted != nil {
		t.Errorf("dedup after rollback = %v, want nil", *acted)
	}

	// Retry within the stalk window succeeds once the exchange recovers.
	h.placer.err = nil
	if d := h.ctrl.OnTick(context.Background(), goodTick()); d.Action != ActionEntered {
		t.Errorf("retry decision = %+v, want entered", d)
	}
}

func TestTakePositionResetsSession(t *testing.T) {
	h := newHarness(t, true, nil)
	snap := h.freshSignal(domain.SignalBuy)

	if d := h.ctrl.OnTick(context.Background(), goodTick()); d.Action != ActionEntered {
		t.Fatal("entry failed")
	}

	pos := h.ctrl.TakePosition()
	if pos == nil || pos.Side != domain.SideYes || pos.Qty != 48 {
		t.Fatalf("position = %+v", pos)
	}
	if pos.BirthTS != snap.BirthTS || pos.Signal != domain.SignalBuy {
		t.Errorf("position indicator context = %+v", pos)
	}
	if again := h.ctrl.TakePosition(); again != nil {
		t.Error("second TakePosition must return nil")
	}

	// Fills reset, but dedup still blocks the same signal in the new session.
	d := h.ctrl.OnTick(context.Background(), goodTick())
	if d.Action != ActionFiltered || d.Reason != "already_acted_this_signal" {
		t.Errorf("post-rollover decision = %+v", d)
	}
}
