// Package indicator implements the ATR trailing-stop trend indicator the
// strategy trades on, plus a concurrency-safe holder for its latest output.
package indicator

import (
	"math"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// Series holds the per-bar intermediate columns of one indicator computation.
// Exposed for tests; callers normally use Compute.
type Series struct {
	ATR     []float64 // NaN until the ATR window is filled
	Stop    []float64
	Signal  []domain.Signal
	BirthTS []float64 // Unix seconds of the last signal flip, forward-filled
}

// MinBars returns the minimum bar count (closed plus live) for Compute to
// yield a defined snapshot: the ATR window, one closed bar with a defined
// signal, and the live bar.
func MinBars(atrPeriod int) int { return atrPeriod + 2 }

// Compute runs the trailing-stop indicator over the bar list (oldest first,
// last entry being the live forming bar) and returns the snapshot the
// strategy consumes: the live bar's signal, ATR, stop, and close, paired with
// the birth timestamp of the last fully closed bar. The closed-bar birth is
// used deliberately; the live bar's signal can still flip back before the
// minute closes, and acting on it would defeat entry deduplication.
//
// ok is false when fewer than MinBars(atrPeriod) bars are supplied.
func Compute(bars []domain.Candle, atrPeriod int, sensitivity float64) (domain.IndicatorSnapshot, bool) {
	if len(bars) < MinBars(atrPeriod) {
		return domain.IndicatorSnapshot{}, false
	}
	s := ComputeSeries(bars, atrPeriod, sensitivity)
	last := len(bars) - 1
	return domain.IndicatorSnapshot{
		Signal:  s.Signal[last],
		ATR:     s.ATR[last],
		Stop:    s.Stop[last],
		Price:   bars[last].Close,
		BirthTS: s.BirthTS[last-1],
	}, true
}

// ComputeSeries computes the full per-bar columns. Bars must be oldest first.
func ComputeSeries(bars []domain.Candle, atrPeriod int, sensitivity float64) Series {
	n := len(bars)
	s := Series{
		ATR:     make([]float64, n),
		Stop:    make([]float64, n),
		Signal:  make([]domain.Signal, n),
		BirthTS: make([]float64, n),
	}

	// True range. The first bar has no previous close, so high-low stands in.
	tr := make([]float64, n)
	for i := range bars {
		hl := bars[i].High - bars[i].Low
		if i == 0 {
			tr[i] = hl
			continue
		}
		pc := bars[i-1].Close
		tr[i] = math.Max(hl, math.Max(math.Abs(bars[i].High-pc), math.Abs(bars[i].Low-pc)))
	}

	// Wilder's smoothed ATR: simple mean of the first atrPeriod true ranges,
	// then atr += (tr - atr) / period.
	for i := range s.ATR {
		s.ATR[i] = math.NaN()
	}
	if n >= atrPeriod {
		sum := 0.0
		for i := 0; i < atrPeriod; i++ {
			sum += tr[i]
		}
		s.ATR[atrPeriod-1] = sum / float64(atrPeriod)
		for i := atrPeriod; i < n; i++ {
			s.ATR[i] = s.ATR[i-1] + (tr[i]-s.ATR[i-1])/float64(atrPeriod)
		}
	}

	// Trailing stop. While ATR is undefined the stop carries forward
	// unchanged from its zero seed.
	for i := 1; i < n; i++ {
		atr := s.ATR[i]
		if math.IsNaN(atr) {
			s.Stop[i] = s.Stop[i-1]
			continue
		}
		nLoss := sensitivity * atr
		close, prevClose, prevStop := bars[i].Close, bars[i-1].Close, s.Stop[i-1]
		switch {
		case close > prevStop && prevClose > prevStop:
			s.Stop[i] = math.Max(prevStop, close-nLoss)
		case close < prevStop && prevClose < prevStop:
			s.Stop[i] = math.Min(prevStop, close+nLoss)
		case close > prevStop:
			s.Stop[i] = close - nLoss
		default:
			s.Stop[i] = close + nLoss
		}
	}

	for i := range bars {
		if bars[i].Close > s.Stop[i] {
			s.Signal[i] = domain.SignalBuy
		} else {
			s.Signal[i] = domain.SignalSell
		}
	}

	// Birth timestamps: the bar time of each signal flip, forward-filled.
	s.BirthTS[0] = bars[0].Seconds()
	for i := 1; i < n; i++ {
		if s.Signal[i] != s.Signal[i-1] {
			s.BirthTS[i] = bars[i].Seconds()
		} else {
			s.BirthTS[i] = s.BirthTS[i-1]
		}
	}

	return s
}
