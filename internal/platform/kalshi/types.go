package kalshi

import (
	"encoding/json"
	"fmt"
	"time"
)

// Market is a market as returned by the Kalshi REST API. Prices are integer
// cents, 1-99.
type Market struct {
	Ticker       string    `json:"ticker"`
	EventTicker  string    `json:"event_ticker"`
	Title        string    `json:"title"`
	Status       string    `json:"status"` // "active", "closed", "settled", "finalized"
	YesBid       int64     `json:"yes_bid"`
	YesAsk       int64     `json:"yes_ask"`
	NoBid        int64     `json:"no_bid"`
	NoAsk        int64     `json:"no_ask"`
	LastPrice    int64     `json:"last_price"`
	Volume       int64     `json:"volume"`
	OpenInterest int64     `json:"open_interest"`
	StrikeType   string    `json:"strike_type"`
	FloorStrike  float64   `json:"floor_strike"`
	CapStrike    float64   `json:"cap_strike"`
	Result       string    `json:"result"` // "yes", "no", "" while unsettled
	OpenTime     time.Time `json:"open_time"`
	CloseTime    time.Time `json:"close_time"`
}

// Settled reports whether the market's outcome is final.
func (m Market) Settled() bool {
	return (m.Status == "settled" || m.Status == "finalized") && m.Result != ""
}

// PriceLevel is one order-book level. The API encodes levels as two-element
// arrays, [price_cents, contract_count], so decoding needs a custom
// unmarshaler.
type PriceLevel struct {
	Price int64
	Count int64
}

func (p *PriceLevel) UnmarshalJSON(b []byte) error {
	var raw []int64
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("price level: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("price level: got %d elements, want 2", len(raw))
	}
	p.Price, p.Count = raw[0], raw[1]
	return nil
}

func (p PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{p.Price, p.Count})
}

// Orderbook holds resting bids for both sides of a market. Kalshi books carry
// bids only; the ask on one side is implied by the bid on the other.
type Orderbook struct {
	Ticker  string       `json:"-"`
	YesBids []PriceLevel `json:"yes"`
	NoBids  []PriceLevel `json:"no"`
	FetchedAt time.Time  `json:"-"`
}

// BestYesBid returns the highest yes bid, ok=false for an empty side. Levels
// arrive sorted ascending, so the best bid is the last element.
func (o Orderbook) BestYesBid() (PriceLevel, bool) { return best(o.YesBids) }

// BestNoBid returns the highest no bid, ok=false for an empty side.
func (o Orderbook) BestNoBid() (PriceLevel, bool) { return best(o.NoBids) }

func best(levels []PriceLevel) (PriceLevel, bool) {
	if len(levels) == 0 {
		return PriceLevel{}, false
	}
	return levels[len(levels)-1], true
}

// TopLiquidity sums contract counts over the top n levels of a side.
func TopLiquidity(levels []PriceLevel, n int) int64 {
	var sum int64
	for i := len(levels) - 1; i >= 0 && i >= len(levels)-n; i-- {
		sum += levels[i].Count
	}
	return sum
}

// OrderRequest is the body for order creation. ClientOrderID makes the
// submission idempotent on the exchange side.
type OrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "limit" or "market"
	Count         int64  `json:"count"`
	YesPrice      *int64 `json:"yes_price,omitempty"`
	NoPrice       *int64 `json:"no_price,omitempty"`
	ExpirationTS  *int64 `json:"expiration_ts,omitempty"`
}

// Order is the exchange's view of a submitted order.
type Order struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	RemainingCount int64  `json:"remaining_count"`
	TakerFillCount int64  `json:"taker_fill_count"`
	MakerFillCount int64  `json:"maker_fill_count"`
}

// ErrorResponse is the API error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
