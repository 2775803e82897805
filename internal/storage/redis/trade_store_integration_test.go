//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/PxPatel/p2p-swap/internal/storage"
	"github.com/PxPatel/p2p-swap/internal/storage/redis"
	"github.com/PxPatel/p2p-swap/internal/storage/storagetest"
	"github.com/PxPatel/p2p-swap/internal/types"
)

func setupRedis(ctx context.Context, t *testing.T) redis.Config {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return redis.Config{Host: host, Port: port.Int(), PoolSize: 16}
}

func TestRedisTradeStore(t *testing.T) {
	ctx := context.Background()
	cfg := setupRedis(ctx, t)

	var run atomic.Int64
	storagetest.RunTradeStoreSuite(t, func(t *testing.T) storage.TradeStore {
		// a fresh key prefix isolates each subtest
		c := cfg
		c.KeyPrefix = fmt.Sprintf("test%d:", run.Add(1))
		store, err := redis.NewTradeStore(ctx, c)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestRedisConcurrentCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	cfg := setupRedis(ctx, t)
	cfg.KeyPrefix = "cas:"

	store, err := redis.NewTradeStore(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	trade := storagetest.NewTrade("alice", "bob")
	require.NoError(t, store.Insert(ctx, trade))

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := trade.Clone()
			next.Status = types.StatusAccepted
			if i%2 == 1 {
				next.Status = types.StatusRejected
			}
			if store.UpdateStatus(ctx, next, types.StatusPending) == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
