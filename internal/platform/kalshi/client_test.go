package kalshi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

func TestPriceLevelUnmarshal(t *testing.T) {
	var ob Orderbook
	raw := `{"yes": [[40, 100], [41, 250]], "no": [[58, 75]]}`
	if err := json.Unmarshal([]byte(raw), &ob); err != nil {
		t.Fatalf("unmarshal orderbook: %v", err)
	}

	if len(ob.YesBids) != 2 || ob.YesBids[1] != (PriceLevel{Price: 41, Count: 250}) {
		t.Errorf("yes bids = %+v", ob.YesBids)
	}
	if len(ob.NoBids) != 1 || ob.NoBids[0] != (PriceLevel{Price: 58, Count: 75}) {
		t.Errorf("no bids = %+v", ob.NoBids)
	}
}

func TestPriceLevelUnmarshalRejectsBadShape(t *testing.T) {
	var lvl PriceLevel
	if err := json.Unmarshal([]byte(`[40]`), &lvl); err == nil {
		t.Error("one-element level must fail to decode")
	}
	if err := json.Unmarshal([]byte(`{"price": 40}`), &lvl); err == nil {
		t.Error("object-form level must fail to decode")
	}
}

func TestBestBids(t *testing.T) {
	ob := Orderbook{
		YesBids: []PriceLevel{{38, 10}, {39, 20}, {40, 30}}, // ascending per API
	}
	bid, ok := ob.BestYesBid()
	if !ok || bid.Price != 40 {
		t.Errorf("best yes bid = %+v ok=%v, want price 40", bid, ok)
	}
	if _, ok := ob.BestNoBid(); ok {
		t.Error("empty no side must report ok=false")
	}
}

func TestTopLiquidity(t *testing.T) {
	levels := []PriceLevel{{35, 1}, {36, 2}, {37, 4}, {38, 8}, {39, 16}, {40, 32}}
	if got := TopLiquidity(levels, 5); got != 62 {
		t.Errorf("top-5 liquidity = %d, want 62", got)
	}
	if got := TopLiquidity(levels, 10); got != 63 {
		t.Errorf("liquidity beyond depth = %d, want full sum 63", got)
	}
	if got := TopLiquidity(nil, 5); got != 0 {
		t.Errorf("empty side liquidity = %d, want 0", got)
	}
}

func TestMarketSettled(t *testing.T) {
	cases := []struct {
		status, result string
		want           bool
	}{
		{"active", "", false},
		{"closed", "", false},
		{"settled", "", false}, // result not yet published
		{"settled", "yes", true},
		{"finalized", "no", true},
	}
	for _, tc := range cases {
		m := Market{Status: tc.status, Result: tc.result}
		if got := m.Settled(); got != tc.want {
			t.Errorf("Settled(%q,%q) = %v, want %v", tc.status, tc.result, got, tc.want)
		}
	}
}

func TestCheckStatusSentinels(t *testing.T) {
	body := []byte(`{"code":"x","message":"y"}`)
	if err := checkStatus(http.StatusNotFound, body); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("404 -> %v, want ErrNotFound", err)
	}
	if err := checkStatus(http.StatusTooManyRequests, body); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("429 -> %v, want ErrRateLimited", err)
	}
	if err := checkStatus(http.StatusForbidden, body); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("403 -> %v, want ErrUnauthorized", err)
	}
	if err := checkStatus(http.StatusOK, nil); err != nil {
		t.Errorf("200 -> %v, want nil", err)
	}
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	c, err := NewClient(serverURL+"/trade-api/v2", "test-key-id")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.SetRSAPrivateKey(pemBytes); err != nil {
		t.Fatalf("set key: %v", err)
	}
	return c
}

func TestRetryRecoversFromServerError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("KALSHI-ACCESS-KEY") != "test-key-id" {
			t.Error("missing access key header")
		}
		if r.Header.Get("KALSHI-ACCESS-SIGNATURE") == "" {
			t.Error("missing signature header")
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"market": {"ticker": "KXBTC15M-TEST", "status": "active"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	m, err := c.GetMarket(context.Background(), "KXBTC15M-TEST")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if m.Ticker != "KXBTC15M-TEST" {
		t.Errorf("ticker = %q", m.Ticker)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestBadRequestDoesNotRetry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_parameters","message":"bad count"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.CreateOrder(context.Background(), OrderRequest{Ticker: "X", Count: 0})
	if err == nil {
		t.Fatal("want error on 400")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 400)", calls.Load())
	}
}
