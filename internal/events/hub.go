// Package events fans trade lifecycle events out to in-process subscribers.
package events

import (
	"context"
	"sync"

	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/types"
)

const defaultBuffer = 32

type subscriber struct {
	wallet string // empty receives every event
	ch     chan types.TradeEvent
}

// Hub delivers each published event to the subscribers of either wallet
// involved. Slow subscribers lose events rather than block the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	buffer int
	closed bool
}

// NewHub creates a hub whose subscriber channels hold buffer events
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		buffer: buffer,
	}
}

// Subscribe registers interest in wallet's trades. The returned cancel
// func closes the channel and must be called once the caller is done.
func (h *Hub) Subscribe(wallet string) (<-chan types.TradeEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan types.TradeEvent, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = &subscriber{wallet: wallet, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Publish implements trading.Publisher
func (h *Hub) Publish(_ context.Context, event types.TradeEvent) {
	if event.Trade == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.wallet != "" && !event.Trade.Involves(sub.wallet) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			logger.Warn("Dropping trade event for slow subscriber", map[string]interface{}{
				"trade_id": event.Trade.ID,
				"event":    event.Type,
				"wallet":   types.FormatWalletAddress(sub.wallet),
			})
		}
	}
}

// Subscribers returns the number of live subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription; later subscriptions are closed immediately
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}
