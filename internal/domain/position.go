package domain

import "time"

// Side is the contract side of a binary-option position.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Position is the single open position for a session, created on fill and
// destroyed when settlement finishes or the session rolls over again. It
// carries a frozen copy of the indicator context at entry so the settlement
// row is self-contained.
type Position struct {
	Ticker          string
	Side            Side
	Qty             int64
	EntryPriceCents int64

	Signal       Signal
	ATR          float64
	Stop         float64
	BirthTS      float64
	SignalAgeMin float64

	OpenedAt time.Time
}

// Cost returns the dollar cost of the position at entry.
func (p Position) Cost() float64 {
	return float64(p.Qty) * float64(p.EntryPriceCents) / 100.0
}
