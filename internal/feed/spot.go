package feed

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/platform/coinbase"
)

const reconnectDelay = 5 * time.Second

// SpotFeed keeps a SpotCache updated from the Coinbase ticker stream,
// reconnecting with a fixed delay on any disconnect.
type SpotFeed struct {
	wsURL     string
	productID string
	cache     *SpotCache
	log       *slog.Logger
}

func NewSpotFeed(wsURL, productID string, cache *SpotCache, log *slog.Logger) *SpotFeed {
	return &SpotFeed{
		wsURL:     wsURL,
		productID: productID,
		cache:     cache,
		log:       log.With("component", "spot_feed"),
	}
}

// Run streams until the context is cancelled.
func (f *SpotFeed) Run(ctx context.Context) error {
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn("spot stream disconnected, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *SpotFeed) runConnection(ctx context.Context) error {
	client := coinbase.NewWSClient(f.wsURL, f.onTicker)
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe([]string{f.productID}); err != nil {
		return err
	}
	f.log.Info("spot stream subscribed", "product", f.productID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-client.Err():
		return err
	}
}

func (f *SpotFeed) onTicker(t coinbase.Ticker) {
	bid, errB := strconv.ParseFloat(t.BestBid, 64)
	ask, errA := strconv.ParseFloat(t.BestAsk, 64)
	if errB != nil || errA != nil || bid <= 0 || ask <= 0 {
		return
	}
	at := t.Time
	if at.IsZero() {
		at = time.Now()
	}
	f.cache.Update(bid, ask, at)
}
