package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

func TestCSVLogHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.csv")

	l, err := NewCSVLog(path)
	if err != nil {
		t.Fatalf("NewCSVLog: %v", err)
	}

	row := domain.ActivityRow{
		Timestamp:   time.Date(2026, 8, 31, 12, 15, 0, 500_000_000, time.UTC),
		Event:       domain.EventPaperBuy,
		Mode:        "PAPER",
		Ticker:      "KXBTC15M-26AUG311230",
		Side:        domain.SideYes,
		EntryPrice:  41,
		Qty:         48,
		TimeLeftMin: 9.876,
		SpotPrice:   64_123.456,
		Strike:      64_000,
		YesBid:      40, NoBid: 55, YesAsk: 45, NoAsk: 60, Spread: 5,
		YesLiq: 120, NoLiq: 80, Imbalance: 0.2,
		Bankroll: 980.25, Rolling24hLoss: 12.5,
		Signal: domain.SignalBuy, ATR: 55.5, Stop: 64_050.12,
		BirthTS: 1_756_642_500, SignalAgeMin: 3.21,
		Msg: "entry",
	}
	if err := l.Append(context.Background(), row); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want header + 1 row", len(records))
	}

	header := records[0]
	if len(header) != len(csvColumns) {
		t.Fatalf("header has %d columns, want %d", len(header), len(csvColumns))
	}
	if header[0] != "timestamp" || header[len(header)-1] != "msg" {
		t.Errorf("header boundaries = %q ... %q", header[0], header[len(header)-1])
	}

	got := records[1]
	checks := map[string]string{
		"timestamp":      "2026-08-31 12:15:00.500000",
		"event":          "PAPER_BUY",
		"mode":           "PAPER",
		"side":           "yes",
		"entry_price":    "41",
		"time_left":      "9.88",
		"btc_price":      "64123.46",
		"obi":            "0.200",
		"ut_signal":      "buy",
		"ob_stale":       "0",
		"pnl_this_trade": "0.0000",
		"msg":            "entry",
	}
	for name, want := range checks {
		i := columnIndex(t, name)
		if got[i] != want {
			t.Errorf("column %s = %q, want %q", name, got[i], want)
		}
	}
}

func columnIndex(t *testing.T, name string) int {
	t.Helper()
	for i, c := range csvColumns {
		if c == name {
			return i
		}
	}
	t.Fatalf("no column %q", name)
	return -1
}

func TestCSVLogAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.csv")

	for i := 0; i < 2; i++ {
		l, err := NewCSVLog(path)
		if err != nil {
			t.Fatalf("NewCSVLog #%d: %v", i, err)
		}
		if err := l.Append(context.Background(), domain.ActivityRow{Event: domain.EventHeartbeat}); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
		l.Close()
	}

	f, _ := os.Open(path)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	// One header, two rows: reopening must not rewrite the header.
	if len(records) != 3 {
		t.Errorf("records = %d, want 3", len(records))
	}
}

type captureSink struct {
	rows []domain.ActivityRow
	err  error
}

func (c *captureSink) Append(_ context.Context, row domain.ActivityRow) error {
	c.rows = append(c.rows, row)
	return c.err
}

type stubRisk struct{}

func (stubRisk) Bankroll() float64                { return 950 }
func (stubRisk) Rolling24hLoss(time.Time) float64 { return 25 }

func TestRecorderStampsSharedFields(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, stubRisk{}, "PAPER", slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec.Record(context.Background(), domain.ActivityRow{
		Event:  domain.EventHeartbeat,
		Side:   domain.SideNo,
		NoBid:  55,
		NoAsk:  60,
		YesBid: 40,
		YesAsk: 45,
	})

	if len(sink.rows) != 1 {
		t.Fatalf("rows = %d", len(sink.rows))
	}
	row := sink.rows[0]
	if row.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
	if row.Mode != "PAPER" || row.Bankroll != 950 || row.Rolling24hLoss != 25 {
		t.Errorf("shared fields = %+v", row)
	}
	if row.Spread != 5 { // no-side spread: 60 - 55
		t.Errorf("spread = %d, want 5", row.Spread)
	}
}

func TestRecorderSwallowsSinkErrors(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	rec := NewRecorder(sink, stubRisk{}, "LIVE", slog.New(slog.NewTextHandler(io.Discard, nil)))
	// Must not panic or propagate.
	rec.Record(context.Background(), domain.ActivityRow{Event: domain.EventError})
}

func TestMultiAppendsToAllSinks(t *testing.T) {
	a, b := &captureSink{}, &captureSink{err: errors.New("b down")}
	c := &captureSink{}
	m := NewMulti(a, b, c)

	err := m.Append(context.Background(), domain.ActivityRow{Event: domain.EventSettle})
	if err == nil {
		t.Fatal("want joined error from failing sink")
	}
	if len(a.rows) != 1 || len(b.rows) != 1 || len(c.rows) != 1 {
		t.Errorf("sink rows = %d/%d/%d, want 1 each", len(a.rows), len(b.rows), len(c.rows))
	}
}
