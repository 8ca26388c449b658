package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseCandles(t *testing.T) {
	// Newest first, head entry is the forming minute.
	raw := [][]float64{
		{1_700_000_160, 99, 103, 100, 102, 3.5}, // forming, dropped
		{1_700_000_100, 98, 101, 99, 100, 2.0},
		{1_700_000_040, 97, 100, 98, 99, 1.0},
	}

	out := parseCandles(raw, 300)
	if len(out) != 2 {
		t.Fatalf("candles = %d, want 2", len(out))
	}
	if out[0].TimestampMs != 1_700_000_040_000 || out[1].TimestampMs != 1_700_000_100_000 {
		t.Errorf("ordering = %d, %d, want oldest first", out[0].TimestampMs, out[1].TimestampMs)
	}
	c := out[0]
	if c.Open != 98 || c.High != 100 || c.Low != 97 || c.Close != 99 || c.Volume != 1.0 {
		t.Errorf("candle fields = %+v", c)
	}
}

func TestParseCandlesLimit(t *testing.T) {
	raw := [][]float64{
		{5, 0, 0, 0, 0, 0},
		{4, 0, 0, 0, 0, 0},
		{3, 0, 0, 0, 0, 0},
		{2, 0, 0, 0, 0, 0},
	}
	out := parseCandles(raw, 2)
	if len(out) != 2 {
		t.Fatalf("candles = %d, want 2", len(out))
	}
	// Limit keeps the newest closed bars, still returned oldest first.
	if out[0].TimestampMs != 3000 || out[1].TimestampMs != 4000 {
		t.Errorf("timestamps = %d, %d", out[0].TimestampMs, out[1].TimestampMs)
	}
}

func TestGetMinuteCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/BTC-USD/candles" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("granularity") != "60" {
			t.Errorf("granularity = %s", r.URL.Query().Get("granularity"))
		}
		_, _ = w.Write([]byte(`[[1700000160,99,103,100,102,3.5],[1700000100,98,101,99,100,2.0]]`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL)
	out, err := c.GetMinuteCandles(context.Background(), "BTC-USD", 300)
	if err != nil {
		t.Fatalf("GetMinuteCandles: %v", err)
	}
	if len(out) != 1 || out[0].Close != 100 {
		t.Errorf("candles = %+v", out)
	}
}
