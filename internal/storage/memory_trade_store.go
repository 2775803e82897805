package storage

import (
	"context"
	"sync"

	"github.com/PxPatel/p2p-swap/internal/types"
)

// InMemoryTradeStore implements TradeStore with an append-only arena of
// records indexed by id. Thread-safe for concurrent access via RWMutex.
// Nothing is ever evicted.
type InMemoryTradeStore struct {
	trades []*types.Trade
	byID   map[string]int
	mutex  sync.RWMutex
}

// NewInMemoryTradeStore creates an empty in-memory trade store
func NewInMemoryTradeStore() *InMemoryTradeStore {
	return &InMemoryTradeStore{
		trades: make([]*types.Trade, 0, 64),
		byID:   make(map[string]int),
	}
}

func (s *InMemoryTradeStore) Insert(_ context.Context, trade *types.Trade) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.byID[trade.ID]; exists {
		return ErrDuplicateID
	}
	s.byID[trade.ID] = len(s.trades)
	s.trades = append(s.trades, trade.Clone())
	return nil
}

func (s *InMemoryTradeStore) Get(_ context.Context, id string) (*types.Trade, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	idx, exists := s.byID[id]
	if !exists {
		return nil, ErrNotFound
	}
	return s.trades[idx].Clone(), nil
}

func (s *InMemoryTradeStore) GetByWallet(_ context.Context, wallet string) ([]*types.Trade, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := []*types.Trade{}
	if wallet == "" {
		return result, nil
	}
	for _, trade := range s.trades {
		if trade.Involves(wallet) {
			result = append(result, trade.Clone())
		}
	}
	return result, nil
}

func (s *InMemoryTradeStore) UpdateStatus(_ context.Context, trade *types.Trade, expected types.Status) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	idx, exists := s.byID[trade.ID]
	if !exists {
		return ErrNotFound
	}
	stored := s.trades[idx]
	if stored.Status != expected {
		return ErrStatusConflict
	}
	stored.Status = trade.Status
	stored.UpdatedAt = trade.UpdatedAt
	stored.SettlementRef = trade.SettlementRef
	return nil
}

// Put inserts trade or replaces the stored copy, keeping its position
func (s *InMemoryTradeStore) Put(_ context.Context, trade *types.Trade) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if idx, exists := s.byID[trade.ID]; exists {
		s.trades[idx] = trade.Clone()
		return nil
	}
	s.byID[trade.ID] = len(s.trades)
	s.trades = append(s.trades, trade.Clone())
	return nil
}

// Len returns the number of stored trades
func (s *InMemoryTradeStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.trades)
}

func (s *InMemoryTradeStore) Close() error {
	// No cleanup needed for in-memory store
	return nil
}
