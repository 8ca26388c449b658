package domain

import "time"

// MarketTick is one observation of the nearest-expiry Kalshi session, built by
// the market feed from the markets listing plus the order book.
type MarketTick struct {
	Ticker      string
	Strike      float64
	MinutesLeft float64

	// Best bids per side and synthetic asks (100 - opposite bid), in cents.
	YesBid int64
	NoBid  int64
	YesAsk int64
	NoAsk  int64

	// Contracts resting on the top 5 levels of each side.
	YesLiq int64
	NoLiq  int64

	// Imbalance is (yesLiq - noLiq) / (yesLiq + noLiq), 0 when both empty.
	Imbalance float64

	// BookValidAt is the last time a non-empty order book was observed for
	// the current session. Zero if none has been seen yet.
	BookValidAt time.Time

	ObservedAt time.Time
}
