// Package audit writes the append-only activity trail consumed by the
// monitoring dashboard and by offline backtesting.
package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// csvColumns is the fixed column order. Existing log files and the dashboard
// both depend on it; append new columns at the end only.
var csvColumns = []string{
	// Identity
	"timestamp", "event", "mode",
	// Market context
	"ticker", "side", "entry_price", "qty",
	"time_left", "btc_price", "strike",
	// Order book
	"raw_yes_bid", "raw_no_bid", "ask_yes", "ask_no", "spread",
	"yes_liq", "no_liq", "obi",
	// Risk
	"bankroll", "rolling_24h_loss",
	// Indicator
	"ut_signal", "ut_atr", "ut_stop",
	"signal_birth_time", "signal_age_min",
	// Diagnostics
	"ob_stale", "filter_reason",
	// Settlement
	"settlement_source", "btc_price_at_settlement", "pnl_this_trade",
	"msg",
}

// CSVLog appends activity rows to a CSV file, writing the header when it
// creates the file. Safe for concurrent use.
type CSVLog struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVLog opens (or creates) the log file in append mode.
func NewCSVLog(path string) (*CSVLog, error) {
	info, err := os.Stat(path)
	fresh := err != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open csv log: %w", err)
	}

	l := &CSVLog{file: f, w: csv.NewWriter(f)}
	if fresh {
		if err := l.w.Write(csvColumns); err != nil {
			f.Close()
			return nil, fmt.Errorf("audit: write csv header: %w", err)
		}
		l.w.Flush()
		if err := l.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("audit: flush csv header: %w", err)
		}
	}
	return l, nil
}

// Append writes one row and flushes it to the file.
func (l *CSVLog) Append(_ context.Context, row domain.ActivityRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Write(encodeRow(row)); err != nil {
		return fmt.Errorf("audit: write csv row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("audit: flush csv row: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	return l.file.Close()
}

func encodeRow(r domain.ActivityRow) []string {
	stale := "0"
	if r.BookStale {
		stale = "1"
	}
	return []string{
		r.Timestamp.UTC().Format("2006-01-02 15:04:05.000000"),
		string(r.Event),
		r.Mode,
		r.Ticker,
		string(r.Side),
		strconv.FormatInt(r.EntryPrice, 10),
		strconv.FormatInt(r.Qty, 10),
		f2(r.TimeLeftMin),
		f2(r.SpotPrice),
		f2(r.Strike),
		strconv.FormatInt(r.YesBid, 10),
		strconv.FormatInt(r.NoBid, 10),
		strconv.FormatInt(r.YesAsk, 10),
		strconv.FormatInt(r.NoAsk, 10),
		strconv.FormatInt(r.Spread, 10),
		strconv.FormatInt(r.YesLiq, 10),
		strconv.FormatInt(r.NoLiq, 10),
		strconv.FormatFloat(r.Imbalance, 'f', 3, 64),
		f2(r.Bankroll),
		f2(r.Rolling24hLoss),
		string(r.Signal),
		f2(r.ATR),
		f2(r.Stop),
		strconv.FormatFloat(r.BirthTS, 'f', -1, 64),
		f2(r.SignalAgeMin),
		stale,
		r.FilterReason,
		r.SettlementSource,
		f2(r.SpotAtSettlement),
		strconv.FormatFloat(r.TradePnL, 'f', 4, 64),
		r.Msg,
	}
}

func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
