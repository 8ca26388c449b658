package domain

// Signal is the direction of the trailing-stop trend indicator.
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
)

// IndicatorSnapshot is the full indicator tuple published by the indicator
// loop and consumed by the strategy controller. It is always read and written
// as one unit; no consumer ever observes a partially updated snapshot.
type IndicatorSnapshot struct {
	Signal   Signal
	ATR      float64
	Stop     float64
	Price    float64
	// BirthTS is the Unix timestamp (seconds) of the most recent confirmed
	// signal flip, taken from the last fully closed bar.
	BirthTS float64
}
