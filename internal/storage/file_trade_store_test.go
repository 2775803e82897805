package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/p2p-swap/internal/storage"
	"github.com/PxPatel/p2p-swap/internal/storage/storagetest"
	"github.com/PxPatel/p2p-swap/internal/types"
)

func TestFileTradeStore_JournalsEveryWrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trades.jsonl")

	journal, err := storage.NewFileTradeStore(path)
	require.NoError(t, err)

	trade := storagetest.NewTrade("alice", "bob")
	require.NoError(t, journal.Insert(ctx, trade))

	accepted := trade.Clone()
	accepted.Status = types.StatusAccepted
	accepted.UpdatedAt = trade.UpdatedAt.Add(time.Second)
	require.NoError(t, journal.UpdateStatus(ctx, accepted, types.StatusPending))
	require.NoError(t, journal.Close())

	entries, err := storage.ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, storage.JournalInsert, entries[0].Op)
	storagetest.AssertTradeEqual(t, trade, entries[0].Trade)
	assert.Equal(t, storage.JournalStatus, entries[1].Op)
	assert.Equal(t, types.StatusPending, entries[1].Expected)
	assert.Equal(t, types.StatusAccepted, entries[1].Trade.Status)
}

func TestFileTradeStore_IsWriteOnly(t *testing.T) {
	ctx := context.Background()
	journal, err := storage.NewFileTradeStore(filepath.Join(t.TempDir(), "trades.jsonl"))
	require.NoError(t, err)
	defer journal.Close()

	trade := storagetest.NewTrade("alice", "bob")
	require.NoError(t, journal.Insert(ctx, trade))

	_, err = journal.Get(ctx, trade.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	trades, err := journal.GetByWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestReplayJournal_RebuildsMemoryStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trades.jsonl")

	journal, err := storage.NewFileTradeStore(path)
	require.NoError(t, err)
	first := storage.NewCompositeTradeStore(storage.NewInMemoryTradeStore(), journal)

	pending := storagetest.NewTrade("alice", "bob")
	rejected := storagetest.NewTrade("bob", "carol")
	require.NoError(t, first.Insert(ctx, pending))
	require.NoError(t, first.Insert(ctx, rejected))

	next := rejected.Clone()
	next.Status = types.StatusRejected
	require.NoError(t, first.UpdateStatus(ctx, next, types.StatusPending))
	require.NoError(t, first.Close())

	restored := storage.NewInMemoryTradeStore()
	applied, err := storage.ReplayJournal(ctx, path, restored)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	got, err := restored.Get(ctx, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, got.Status)

	trades, err := restored.GetByWallet(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, pending.ID, trades[0].ID)

	// Second replay applies nothing new
	applied, err = storage.ReplayJournal(ctx, path, restored)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
}

func TestReadJournal_MissingFile(t *testing.T) {
	entries, err := storage.ReadJournal(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadJournal_CorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json\n"), 0644))

	_, err := storage.ReadJournal(path)
	assert.Error(t, err)
}
