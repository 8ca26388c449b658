package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// RESTClient fetches historical candles from the Coinbase Exchange public
// API. Used once at startup to warm the indicator.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a client for the given API root, e.g.
// "https://api.exchange.coinbase.com".
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// GetMinuteCandles returns up to limit fully closed 1-minute candles for a
// product, oldest first. The API responds newest first with the still-forming
// minute at the head; that bar is dropped.
func (c *RESTClient) GetMinuteCandles(ctx context.Context, productID string, limit int) ([]domain.Candle, error) {
	u := fmt.Sprintf("%s/products/%s/candles?granularity=60", c.baseURL, url.PathEscape(productID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("coinbase: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coinbase: get candles: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coinbase: read candles: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coinbase: candles HTTP %d: %s", resp.StatusCode, body)
	}

	// Each entry is [time, low, high, open, close, volume], newest first.
	var raw [][]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("coinbase: decode candles: %w", err)
	}
	return parseCandles(raw, limit), nil
}

func parseCandles(raw [][]float64, limit int) []domain.Candle {
	if len(raw) > 0 {
		raw = raw[1:] // drop the forming bar
	}
	if len(raw) > limit {
		raw = raw[:limit]
	}

	out := make([]domain.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- { // reverse to oldest first
		e := raw[i]
		if len(e) < 6 {
			continue
		}
		out = append(out, domain.Candle{
			TimestampMs: int64(e[0]) * 1000,
			Low:         e[1],
			High:        e[2],
			Open:        e[3],
			Close:       e[4],
			Volume:      e[5],
		})
	}
	return out
}
