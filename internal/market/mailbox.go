// Package market discovers the active binary-option session and publishes
// fresh order-book observations to the decision loop.
package market

import (
	"sync"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// Mailbox is a capacity-one, last-value-wins handoff between the market
// poller and the decision loop. A slow consumer never sees a backlog of
// outdated ticks, only the most recent one.
type Mailbox struct {
	mu   sync.Mutex
	tick *domain.MarketTick
	note chan struct{}
}

func NewMailbox() *Mailbox {
	return &Mailbox{note: make(chan struct{}, 1)}
}

// Put replaces the stored tick and signals the consumer. Never blocks.
func (m *Mailbox) Put(t domain.MarketTick) {
	m.mu.Lock()
	m.tick = &t
	m.mu.Unlock()

	select {
	case m.note <- struct{}{}:
	default:
	}
}

// Latest returns the most recent tick, ok=false before the first Put.
func (m *Mailbox) Latest() (domain.MarketTick, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tick == nil {
		return domain.MarketTick{}, false
	}
	return *m.tick, true
}

// Updated yields at least one receive after any Put. Consecutive Puts between
// receives coalesce into a single notification.
func (m *Mailbox) Updated() <-chan struct{} {
	return m.note
}
