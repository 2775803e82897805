package performance

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/p2p-swap/internal/api/models"
	"github.com/PxPatel/p2p-swap/internal/api/tests/testutils"
	"github.com/PxPatel/p2p-swap/internal/types"
)

// BenchmarkTradeCreationThroughput measures proposals per second
func BenchmarkTradeCreationThroughput(b *testing.B) {
	ts := testutils.NewTestServer(b)
	defer ts.Close()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		req := testutils.NewCreateTradeRequest("alice", "bob", testutils.SolOffer("1.25"), testutils.NFTOffer(i, "nft"))
		resp := ts.Post("/trade", req)
		require.Equal(b, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	tradesPerSec := float64(b.N) / b.Elapsed().Seconds()
	b.ReportMetric(tradesPerSec, "trades/sec")
}

// BenchmarkTradeLifecycle measures create, accept and complete end to end
func BenchmarkTradeLifecycle(b *testing.B) {
	ts := testutils.NewTestServer(b)
	defer ts.Close()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		trade := ts.CreateTrade(b, "alice", "bob", testutils.SolOffer("1"), types.TradeOffer{})

		resp := ts.Post("/trade/"+trade.ID+"/accept", testutils.NewTransition("bob"))
		require.Equal(b, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		resp = ts.Post("/trade/"+trade.ID+"/complete", testutils.NewCompletion("alice", "sig"))
		require.Equal(b, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	lifecyclesPerSec := float64(b.N) / b.Elapsed().Seconds()
	b.ReportMetric(lifecyclesPerSec, "lifecycles/sec")
}

// BenchmarkWalletListing measures listing a wallet with many trades
func BenchmarkWalletListing(b *testing.B) {
	ts := testutils.NewTestServer(b)
	defer ts.Close()

	// Populate 200 trades touching alice
	for i := 0; i < 200; i++ {
		ts.CreateTrade(b, "alice", fmt.Sprintf("peer-%d", i), testutils.SolOffer("1"), types.TradeOffer{})
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		resp := ts.Get("/trades?wallet=alice")
		require.Equal(b, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	listingsPerSec := float64(b.N) / b.Elapsed().Seconds()
	b.ReportMetric(listingsPerSec, "listings/sec")
}

// BenchmarkConcurrentTradeCreation measures concurrent request handling
func BenchmarkConcurrentTradeCreation(b *testing.B) {
	ts := testutils.NewTestServer(b)
	defer ts.Close()

	concurrency := 10
	b.SetParallelism(concurrency)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			req := testutils.NewCreateTradeRequest("alice", "bob", testutils.SolOffer("2"), types.TradeOffer{})
			resp := ts.Post("/trade", req)
			if resp.StatusCode != http.StatusCreated {
				b.Errorf("unexpected status %d", resp.StatusCode)
			}
			resp.Body.Close()
		}
	})

	tradesPerSec := float64(b.N) / b.Elapsed().Seconds()
	b.ReportMetric(tradesPerSec, "trades/sec")
}

// TestMarketplaceSimulation runs many wallets proposing to and settling with
// each other at once
func TestMarketplaceSimulation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping marketplace simulation in short mode")
	}

	ts := testutils.NewTestServer(t)
	defer ts.Close()

	const wallets = 8
	duration := 3 * time.Second

	var created, accepted, rejected, completed atomic.Uint64

	participant := func(id int) {
		self := fmt.Sprintf("wallet-%d", id)
		peer := fmt.Sprintf("wallet-%d", (id+1)%wallets)
		for start := time.Now(); time.Since(start) < duration; {
			resp := ts.Post("/trade", testutils.NewCreateTradeRequest(self, peer, testutils.SolOffer("1"), types.TradeOffer{}))
			if resp.StatusCode == http.StatusCreated {
				created.Add(1)
			}
			resp.Body.Close()

			// Answer whatever is pending for us
			resp = ts.Get("/trades?status=pending&wallet=" + self)
			var list models.TradesResponse
			testutils.DecodeJSON(t, resp, &list)
			for i, trade := range list.Trades {
				if trade.CounterpartyWallet != self {
					continue
				}
				if i%3 == 2 {
					r := ts.Post("/trade/"+trade.ID+"/reject", testutils.NewTransition(self))
					if r.StatusCode == http.StatusOK {
						rejected.Add(1)
					}
					r.Body.Close()
					continue
				}
				r := ts.Post("/trade/"+trade.ID+"/accept", testutils.NewTransition(self))
				ok := r.StatusCode == http.StatusOK
				r.Body.Close()
				if !ok {
					continue
				}
				accepted.Add(1)
				r = ts.Post("/trade/"+trade.ID+"/complete", testutils.NewCompletion(self, "sig-"+trade.ID))
				if r.StatusCode == http.StatusOK {
					completed.Add(1)
				}
				r.Body.Close()
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	var wg sync.WaitGroup
	wg.Add(wallets)
	for i := 0; i < wallets; i++ {
		go func(id int) { defer wg.Done(); participant(id) }(i)
	}
	wg.Wait()

	t.Logf("Simulation Results (%v):", duration)
	t.Logf("  Created:   %d", created.Load())
	t.Logf("  Accepted:  %d", accepted.Load())
	t.Logf("  Rejected:  %d", rejected.Load())
	t.Logf("  Completed: %d", completed.Load())

	require.Positive(t, created.Load())
	assert.Equal(t, accepted.Load(), completed.Load(), "every accepted trade is completed by its counterparty")
	assert.Equal(t, int(created.Load()), ts.Memory.Len())
}

// TestLatencyMeasurement measures end-to-end latency
func TestLatencyMeasurement(t *testing.T) {
	ts := testutils.NewTestServer(t)
	defer ts.Close()

	numRequests := 500
	latencies := make([]time.Duration, numRequests)

	for i := 0; i < numRequests; i++ {
		start := time.Now()
		resp := ts.Post("/trade", testutils.NewCreateTradeRequest("alice", "bob", testutils.SolOffer("1"), types.TradeOffer{}))
		latencies[i] = time.Since(start)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	var total time.Duration
	for _, lat := range latencies {
		total += lat
	}
	avg := total / time.Duration(numRequests)

	sorted := make([]time.Duration, numRequests)
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	p95 := sorted[int(float64(numRequests)*0.95)]
	p99 := sorted[int(float64(numRequests)*0.99)]

	t.Logf("Latency Statistics (%d requests):", numRequests)
	t.Logf("  Min: %v", sorted[0])
	t.Logf("  Max: %v", sorted[numRequests-1])
	t.Logf("  Avg: %v", avg)
	t.Logf("  P95: %v", p95)
	t.Logf("  P99: %v", p99)

	require.Less(t, avg, 50*time.Millisecond, "Average latency should be < 50ms")
	require.Less(t, p99, 200*time.Millisecond, "P99 latency should be < 200ms")
}
