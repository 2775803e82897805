// Package storagetest holds the behaviour every storage.TradeStore must share.
// Each backend's tests call RunTradeStoreSuite with a constructor.
package storagetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/p2p-swap/internal/storage"
	"github.com/PxPatel/p2p-swap/internal/types"
)

var seq atomic.Uint64

// unique returns a value unique across the test binary so suites can share one backing store
func unique(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// NewTrade builds a pending trade between creator and counterparty
func NewTrade(creator, counterparty string) *types.Trade {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &types.Trade{
		ID:                 unique("TRADE"),
		CreatorWallet:      creator,
		CounterpartyWallet: counterparty,
		CreatorOffer: types.TradeOffer{
			Tokens: []types.TokenItem{
				{ID: 1, Name: "USD Coin", Symbol: "USDC", Amount: decimal.RequireFromString("25.5")},
			},
			NFTs: []types.NFTItem{
				{ID: 9, Name: "Mad Lad #9", Collection: "Mad Lads", ImageRef: "https://img.example/9.png"},
			},
			SolAmount: decimal.RequireFromString("1.5"),
		},
		CounterpartyOffer: types.TradeOffer{}.Normalize(),
		Status:            types.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// AssertTradeEqual compares trades field by field, tolerant of time zone
// and decimal representation differences introduced by backends.
func AssertTradeEqual(t testing.TB, expected, actual *types.Trade) {
	t.Helper()
	require.NotNil(t, actual)
	assert.Equal(t, expected.ID, actual.ID)
	assert.Equal(t, expected.CreatorWallet, actual.CreatorWallet)
	assert.Equal(t, expected.CounterpartyWallet, actual.CounterpartyWallet)
	assert.Equal(t, expected.Status, actual.Status)
	assert.Equal(t, expected.SettlementRef, actual.SettlementRef)
	assert.True(t, expected.CreatedAt.Equal(actual.CreatedAt), "createdAt: want %s got %s", expected.CreatedAt, actual.CreatedAt)
	assert.True(t, expected.UpdatedAt.Equal(actual.UpdatedAt), "updatedAt: want %s got %s", expected.UpdatedAt, actual.UpdatedAt)
	assertOfferEqual(t, expected.CreatorOffer, actual.CreatorOffer)
	assertOfferEqual(t, expected.CounterpartyOffer, actual.CounterpartyOffer)
}

func assertOfferEqual(t testing.TB, expected, actual types.TradeOffer) {
	t.Helper()
	assert.True(t, expected.SolAmount.Equal(actual.SolAmount), "solAmount: want %s got %s", expected.SolAmount, actual.SolAmount)
	require.Len(t, actual.Tokens, len(expected.Tokens))
	for i := range expected.Tokens {
		assert.Equal(t, expected.Tokens[i].ID, actual.Tokens[i].ID)
		assert.Equal(t, expected.Tokens[i].Symbol, actual.Tokens[i].Symbol)
		assert.Equal(t, expected.Tokens[i].Name, actual.Tokens[i].Name)
		assert.True(t, expected.Tokens[i].Amount.Equal(actual.Tokens[i].Amount))
	}
	assert.Equal(t, len(expected.NFTs), len(actual.NFTs))
	if len(expected.NFTs) > 0 {
		assert.Equal(t, expected.NFTs, actual.NFTs)
	}
}

// RunTradeStoreSuite exercises the TradeStore contract against stores built by newStore.
func RunTradeStoreSuite(t *testing.T, newStore func(t *testing.T) storage.TradeStore) {
	ctx := context.Background()

	t.Run("InsertThenGet", func(t *testing.T) {
		store := newStore(t)
		trade := NewTrade(unique("alice"), unique("bob"))

		require.NoError(t, store.Insert(ctx, trade))

		got, err := store.Get(ctx, trade.ID)
		require.NoError(t, err)
		AssertTradeEqual(t, trade, got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(ctx, unique("TRADE-MISSING"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("InsertDuplicateID", func(t *testing.T) {
		store := newStore(t)
		trade := NewTrade(unique("alice"), unique("bob"))

		require.NoError(t, store.Insert(ctx, trade))
		err := store.Insert(ctx, trade)
		assert.ErrorIs(t, err, storage.ErrDuplicateID)
	})

	t.Run("GetByWalletInInsertionOrder", func(t *testing.T) {
		store := newStore(t)
		alice, bob, carol := unique("alice"), unique("bob"), unique("carol")

		first := NewTrade(alice, bob)
		second := NewTrade(carol, alice)
		third := NewTrade(bob, carol)
		for _, trade := range []*types.Trade{first, second, third} {
			require.NoError(t, store.Insert(ctx, trade))
		}

		trades, err := store.GetByWallet(ctx, alice)
		require.NoError(t, err)
		require.Len(t, trades, 2)
		assert.Equal(t, first.ID, trades[0].ID)
		assert.Equal(t, second.ID, trades[1].ID)

		trades, err = store.GetByWallet(ctx, carol)
		require.NoError(t, err)
		require.Len(t, trades, 2)
		assert.Equal(t, second.ID, trades[0].ID)
		assert.Equal(t, third.ID, trades[1].ID)
	})

	t.Run("GetByWalletUnknownIsEmpty", func(t *testing.T) {
		store := newStore(t)

		trades, err := store.GetByWallet(ctx, unique("nobody"))
		require.NoError(t, err)
		assert.NotNil(t, trades)
		assert.Empty(t, trades)

		trades, err = store.GetByWallet(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, trades)
	})

	t.Run("UpdateStatusCompareAndSwap", func(t *testing.T) {
		store := newStore(t)
		trade := NewTrade(unique("alice"), unique("bob"))
		require.NoError(t, store.Insert(ctx, trade))

		accepted := trade.Clone()
		accepted.Status = types.StatusAccepted
		accepted.UpdatedAt = trade.UpdatedAt.Add(time.Second)
		require.NoError(t, store.UpdateStatus(ctx, accepted, types.StatusPending))

		got, err := store.Get(ctx, trade.ID)
		require.NoError(t, err)
		AssertTradeEqual(t, accepted, got)

		rejected := trade.Clone()
		rejected.Status = types.StatusRejected
		rejected.UpdatedAt = trade.UpdatedAt.Add(2 * time.Second)
		err = store.UpdateStatus(ctx, rejected, types.StatusPending)
		assert.ErrorIs(t, err, storage.ErrStatusConflict)

		got, err = store.Get(ctx, trade.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusAccepted, got.Status)
	})

	t.Run("UpdateStatusRecordsSettlementRef", func(t *testing.T) {
		store := newStore(t)
		trade := NewTrade(unique("alice"), unique("bob"))
		trade.Status = types.StatusAccepted
		require.NoError(t, store.Insert(ctx, trade))

		completed := trade.Clone()
		completed.Status = types.StatusCompleted
		completed.SettlementRef = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb"
		completed.UpdatedAt = trade.UpdatedAt.Add(time.Minute)
		require.NoError(t, store.UpdateStatus(ctx, completed, types.StatusAccepted))

		got, err := store.Get(ctx, trade.ID)
		require.NoError(t, err)
		assert.Equal(t, completed.SettlementRef, got.SettlementRef)
	})

	t.Run("UpdateStatusMissing", func(t *testing.T) {
		store := newStore(t)
		trade := NewTrade(unique("alice"), unique("bob"))
		trade.Status = types.StatusAccepted

		err := store.UpdateStatus(ctx, trade, types.StatusPending)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ReturnedTradesAreCopies", func(t *testing.T) {
		store := newStore(t)
		trade := NewTrade(unique("alice"), unique("bob"))
		require.NoError(t, store.Insert(ctx, trade))

		// mutating the inserted value must not leak into the store
		trade.Status = types.StatusRejected

		got, err := store.Get(ctx, trade.ID)
		require.NoError(t, err)
		got.Status = types.StatusCompleted
		got.CreatorOffer.Tokens[0].Symbol = "SCAM"

		again, err := store.Get(ctx, trade.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusPending, again.Status)
		assert.Equal(t, "USDC", again.CreatorOffer.Tokens[0].Symbol)
	})
}
