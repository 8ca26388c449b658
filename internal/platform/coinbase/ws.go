// Package coinbase provides the spot-price collaborators: a WebSocket ticker
// client and a small REST client for historical candles.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Ticker is one best-bid/best-ask update from the ticker channel. Prices are
// decimal strings as sent on the wire.
type Ticker struct {
	Type      string    `json:"type"`
	ProductID string    `json:"product_id"`
	Price     string    `json:"price"`
	BestBid   string    `json:"best_bid"`
	BestAsk   string    `json:"best_ask"`
	Time      time.Time `json:"time"`
}

// TickerHandler is called for each ticker message.
type TickerHandler func(Ticker)

// WSClient is a WebSocket client for the Coinbase Exchange market-data feed.
type WSClient struct {
	wsURL    string
	onTicker TickerHandler

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	done chan struct{}
	errc chan error
}

// NewWSClient creates a client for the given endpoint, e.g.
// "wss://ws-feed.exchange.coinbase.com".
func NewWSClient(wsURL string, onTicker TickerHandler) *WSClient {
	return &WSClient{
		wsURL:    wsURL,
		onTicker: onTicker,
		done:     make(chan struct{}),
		errc:     make(chan error, 1),
	}
}

// Connect dials the feed and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("coinbase/ws: client closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("coinbase/ws: connect: %w", err)
	}
	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()
	return nil
}

// Subscribe subscribes to the ticker channel for the given products.
func (w *WSClient) Subscribe(productIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("coinbase/ws: not connected")
	}

	sub := map[string]any{
		"type":        "subscribe",
		"product_ids": productIDs,
		"channels":    []string{"ticker"},
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("coinbase/ws: subscribe: %w", err)
	}
	return nil
}

// Err yields the terminal read-loop error, signalling that the connection is
// dead and the caller should reconnect.
func (w *WSClient) Err() <-chan error { return w.errc }

func (w *WSClient) readLoop() {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case w.errc <- fmt.Errorf("coinbase/ws: read: %w", err):
			default:
			}
			return
		}

		var tick Ticker
		if err := json.Unmarshal(data, &tick); err != nil {
			continue
		}
		if tick.Type == "ticker" && w.onTicker != nil {
			w.onTicker(tick)
		}
	}
}

func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			conn := w.conn
			w.mu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close shuts down the connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}
