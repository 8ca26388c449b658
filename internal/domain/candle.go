package domain

// Candle is a single 1-minute OHLCV bar. TimestampMs is the bucket start,
// floored to the minute, in Unix milliseconds.
type Candle struct {
	TimestampMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// Seconds returns the bar's bucket start in Unix seconds.
func (c Candle) Seconds() float64 {
	return float64(c.TimestampMs) / 1000.0
}
