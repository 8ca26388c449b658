package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// streamMaxLen is the approximate maximum length for the activity stream,
// enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// ActivityBus implements domain.ActivityLog on a Redis stream. Each row is
// appended as one JSON entry; the dashboard tails the stream with XREAD, or
// subscribes to the companion "<stream>:live" channel for push delivery. A
// bounded stream keeps memory flat regardless of bot uptime.
type ActivityBus struct {
	rdb     *redis.Client
	stream  string
	channel string
}

// NewActivityBus creates a bus writing to the given stream key.
func NewActivityBus(c *Client, stream string) *ActivityBus {
	return &ActivityBus{rdb: c.Underlying(), stream: stream, channel: stream + ":live"}
}

// Append publishes one activity row to the stream.
func (b *ActivityBus) Append(ctx context.Context, row domain.ActivityRow) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("redis: encode activity row: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event":   string(row.Event),
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", b.stream, err)
	}

	// Push delivery for connected dashboards. Nothing re-reads the channel,
	// so a dropped message only costs a live viewer one refresh.
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.channel, err)
	}
	return nil
}
