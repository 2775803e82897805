package storage

import (
	"context"
	"errors"

	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/types"
)

// CompositeTradeStore combines multiple TradeStore implementations.
// Example: CompositeTradeStore([memoryStore, postgresStore, fileStore]) serves
// reads from memory, survives restarts through postgres and keeps an audit
// trail in the file journal.
//
// The last readable layer is the authority: it decides duplicate ids and the
// status compare-and-swap, and answers wallet listings. Readable layers in
// front of it are caches that mirror what the authority accepted. Write-only
// layers (journals) record every write the authority accepted.
type CompositeTradeStore struct {
	stores    []TradeStore
	authority int
}

// NewCompositeTradeStore creates a composite store from multiple stores
func NewCompositeTradeStore(stores ...TradeStore) *CompositeTradeStore {
	authority := -1
	for i, store := range stores {
		if !isWriteOnly(store) {
			authority = i
		}
	}
	return &CompositeTradeStore{
		stores:    stores,
		authority: authority,
	}
}

// caches returns the readable layers in front of the authority
func (c *CompositeTradeStore) caches() []TradeStore {
	var out []TradeStore
	for i, store := range c.stores {
		if i != c.authority && !isWriteOnly(store) {
			out = append(out, store)
		}
	}
	return out
}

// journals returns the write-only layers
func (c *CompositeTradeStore) journals() []TradeStore {
	var out []TradeStore
	for _, store := range c.stores {
		if isWriteOnly(store) {
			out = append(out, store)
		}
	}
	return out
}

func (c *CompositeTradeStore) Insert(ctx context.Context, trade *types.Trade) error {
	if c.authority < 0 {
		return errors.New("composite trade store has no readable layer")
	}
	if err := c.stores[c.authority].Insert(ctx, trade); err != nil {
		return err
	}

	for _, cache := range c.caches() {
		c.mirror(ctx, cache, trade, cache.Insert(ctx, trade))
	}
	for _, journal := range c.journals() {
		if err := journal.Insert(ctx, trade); err != nil {
			c.logLayerFailure("Journal insert failed", trade, err)
		}
	}
	return nil
}

// Get serves terminal trades from a cache, since they can no longer change.
// Anything else is read from the authority and copied into the caches.
func (c *CompositeTradeStore) Get(ctx context.Context, id string) (*types.Trade, error) {
	if c.authority < 0 {
		return nil, ErrNotFound
	}

	var cached *types.Trade
	for _, cache := range c.caches() {
		trade, err := cache.Get(ctx, id)
		if err != nil {
			continue
		}
		if trade.Status.Terminal() {
			return trade, nil
		}
		if cached == nil {
			cached = trade
		}
	}

	trade, err := c.stores[c.authority].Get(ctx, id)
	switch {
	case err == nil:
		if cached == nil || cached.Status != trade.Status {
			c.refresh(ctx, trade)
		}
		return trade, nil
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotFound
	case cached != nil:
		logger.Warn("Authoritative store read failed, serving cached trade", map[string]interface{}{
			"trade_id": id,
			"error":    err.Error(),
		})
		return cached, nil
	default:
		return nil, err
	}
}

// GetByWallet answers from the authority, which holds every trade. A cache
// only answers when the authority cannot.
func (c *CompositeTradeStore) GetByWallet(ctx context.Context, wallet string) ([]*types.Trade, error) {
	if c.authority < 0 {
		return []*types.Trade{}, nil
	}

	trades, err := c.stores[c.authority].GetByWallet(ctx, wallet)
	if err == nil {
		return trades, nil
	}

	for _, cache := range c.caches() {
		if cachedTrades, cacheErr := cache.GetByWallet(ctx, wallet); cacheErr == nil {
			logger.Warn("Authoritative store listing failed, serving cached trades", map[string]interface{}{
				"wallet": types.FormatWalletAddress(wallet),
				"error":  err.Error(),
			})
			return cachedTrades, nil
		}
	}
	return nil, err
}

// UpdateStatus lets the authority decide the compare-and-swap. A winning
// write is mirrored into the caches and journals; a losing one refreshes the
// caches with the authority's copy and returns the conflict.
func (c *CompositeTradeStore) UpdateStatus(ctx context.Context, trade *types.Trade, expected types.Status) error {
	if c.authority < 0 {
		return ErrNotFound
	}

	err := c.stores[c.authority].UpdateStatus(ctx, trade, expected)
	if errors.Is(err, ErrStatusConflict) {
		if current, getErr := c.stores[c.authority].Get(ctx, trade.ID); getErr == nil {
			c.refresh(ctx, current)
		}
		return err
	}
	if err != nil {
		return err
	}

	for _, cache := range c.caches() {
		c.mirror(ctx, cache, trade, cache.UpdateStatus(ctx, trade, expected))
	}
	for _, journal := range c.journals() {
		if err := journal.UpdateStatus(ctx, trade, expected); err != nil {
			c.logLayerFailure("Journal status update failed", trade, err)
		}
	}
	return nil
}

// mirror repairs a cache whose write disagreed with the authority
func (c *CompositeTradeStore) mirror(ctx context.Context, cache TradeStore, trade *types.Trade, err error) {
	if err == nil {
		return
	}
	if w, ok := cache.(Cache); ok {
		putErr := w.Put(ctx, trade)
		if putErr == nil {
			return
		}
		err = putErr
	}
	c.logLayerFailure("Cache update failed", trade, err)
}

// refresh overwrites every cache with the authority's copy of trade
func (c *CompositeTradeStore) refresh(ctx context.Context, trade *types.Trade) {
	for _, cache := range c.caches() {
		w, ok := cache.(Cache)
		if !ok {
			continue
		}
		if err := w.Put(ctx, trade); err != nil {
			c.logLayerFailure("Cache refresh failed", trade, err)
		}
	}
}

func (c *CompositeTradeStore) logLayerFailure(message string, trade *types.Trade, err error) {
	logger.Warn(message, map[string]interface{}{
		"trade_id": trade.ID,
		"status":   trade.Status,
		"error":    err.Error(),
	})
}

// Ping checks every layer that supports it
func (c *CompositeTradeStore) Ping(ctx context.Context) error {
	for _, store := range c.stores {
		if p, ok := store.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *CompositeTradeStore) Close() error {
	// Close all stores
	var lastErr error
	for _, store := range c.stores {
		if err := store.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
