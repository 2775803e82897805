package integration

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/p2p-swap/internal/api/models"
	"github.com/PxPatel/p2p-swap/internal/api/tests/testutils"
	"github.com/PxPatel/p2p-swap/internal/storage"
	"github.com/PxPatel/p2p-swap/internal/types"
)

const (
	alice = "AliceWa11et1111111111111111111111111111111"
	bob   = "BobWa11et22222222222222222222222222222222"
	carol = "Caro1Wa11et333333333333333333333333333333"
)

// TestFullTradeLifecycle walks a proposal through accept and complete
func TestFullTradeLifecycle(t *testing.T) {
	ts := testutils.NewTestServer(t)

	// Step 1: Alice proposes 1.5 SOL for Bob's NFT
	trade := ts.CreateTrade(t, alice, bob, testutils.SolOffer("1.5"), testutils.NFTOffer(7, "Monkey"))
	assert.Regexp(t, `^TRADE-[0-9A-Z]{8}$`, trade.ID)
	assert.Equal(t, types.StatusPending, trade.Status)
	assert.True(t, trade.CreatorOffer.SolAmount.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, []types.TokenItem{}, trade.CreatorOffer.Tokens)
	require.Len(t, trade.CounterpartyOffer.NFTs, 1)
	assert.Equal(t, "Monkey", trade.CounterpartyOffer.NFTs[0].Name)
	assert.Equal(t, trade.CreatedAt, trade.UpdatedAt)

	// Step 2: Both wallets see it
	for _, wallet := range []string{alice, bob} {
		var list models.TradesResponse
		testutils.DecodeJSON(t, ts.Get("/trades?wallet="+wallet), &list)
		require.Equal(t, 1, list.Count)
		assert.Equal(t, trade.ID, list.Trades[0].ID)
	}

	// Step 3: Bob accepts
	resp := ts.Post("/trade/"+trade.ID+"/accept", testutils.NewTransition(bob))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accepted models.TradeResponse
	testutils.DecodeJSON(t, resp, &accepted)
	assert.Equal(t, types.StatusAccepted, accepted.Trade.Status)
	assert.GreaterOrEqual(t, accepted.Trade.UpdatedAt, trade.UpdatedAt)
	assert.Equal(t, trade.CreatedAt, accepted.Trade.CreatedAt)

	// Step 4: Alice reports settlement
	resp = ts.Post("/trade/"+trade.ID+"/complete", testutils.NewCompletion(alice, "5sigXYZ"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var completed models.TradeResponse
	testutils.DecodeJSON(t, resp, &completed)
	assert.Equal(t, types.StatusCompleted, completed.Trade.Status)
	assert.Equal(t, "5sigXYZ", completed.Trade.SettlementRef)

	// Step 5: Terminal; nothing else applies
	testutils.ExpectError(t, ts.Post("/trade/"+trade.ID+"/reject", testutils.NewTransition(bob)),
		http.StatusConflict, models.ErrInvalidState)

	var fetched models.TradeResponse
	testutils.DecodeJSON(t, ts.Get("/trade/"+trade.ID), &fetched)
	assert.Equal(t, types.StatusCompleted, fetched.Trade.Status)

	// Journal recorded the insert and both status changes
	entries := ts.ReadJournal()
	require.Len(t, entries, 3)
	assert.Equal(t, storage.JournalInsert, entries[0].Op)
	assert.Equal(t, types.StatusPending, entries[1].Expected)
	assert.Equal(t, types.StatusCompleted, entries[2].Trade.Status)
}

// TestRejectFlow covers rejection by either participant
func TestRejectFlow(t *testing.T) {
	ts := testutils.NewTestServer(t)

	byCounterparty := ts.CreateTrade(t, alice, bob, testutils.SolOffer("1"), types.TradeOffer{})
	byCreator := ts.CreateTrade(t, alice, bob, testutils.SolOffer("2"), types.TradeOffer{})

	for _, tc := range []struct {
		id     string
		wallet string
	}{
		{byCounterparty.ID, bob},
		{byCreator.ID, alice},
	} {
		resp := ts.Post("/trade/"+tc.id+"/reject", testutils.NewTransition(tc.wallet))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body models.TradeResponse
		testutils.DecodeJSON(t, resp, &body)
		assert.Equal(t, types.StatusRejected, body.Trade.Status)

		// Rejected trades cannot be accepted
		errBody := testutils.ExpectError(t, ts.Post("/trade/"+tc.id+"/accept", testutils.NewTransition(bob)),
			http.StatusConflict, models.ErrInvalidState)
		assert.Equal(t, "rejected", errBody.Status)
	}
}

func TestCreateTradeValidation(t *testing.T) {
	ts := testutils.NewTestServer(t)

	tests := []struct {
		name  string
		body  string
		code  models.ErrorCode
		field string
	}{
		{"empty body", ``, models.ErrInvalidRequest, ""},
		{"malformed json", `{"creatorWallet":`, models.ErrInvalidRequest, ""},
		{"wrong wallet type", `{"creatorWallet":42}`, models.ErrValidationFailed, "creatorWallet"},
		{"missing creator", `{"counterpartyWallet":"` + bob + `","creatorOffer":{"solAmount":1}}`, models.ErrValidationFailed, "creatorWallet"},
		{"blank counterparty", `{"creatorWallet":"` + alice + `","counterpartyWallet":"  ","creatorOffer":{"solAmount":1}}`, models.ErrValidationFailed, "counterpartyWallet"},
		{"empty creator offer", `{"creatorWallet":"` + alice + `","counterpartyWallet":"` + bob + `","creatorOffer":{"tokens":[],"nfts":[],"solAmount":0}}`, models.ErrValidationFailed, "creatorOffer"},
		{"null creator offer", `{"creatorWallet":"` + alice + `","counterpartyWallet":"` + bob + `","creatorOffer":null}`, models.ErrValidationFailed, "creatorOffer"},
		{"negative sol", `{"creatorWallet":"` + alice + `","counterpartyWallet":"` + bob + `","creatorOffer":{"solAmount":-1}}`, models.ErrValidationFailed, "creatorOffer.solAmount"},
		{"negative token", `{"creatorWallet":"` + alice + `","counterpartyWallet":"` + bob + `","creatorOffer":{"solAmount":1},"counterpartyOffer":{"tokens":[{"id":1,"symbol":"USDC","amount":-5}]}}`, models.ErrValidationFailed, "counterpartyOffer.tokens[0].amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := testutils.ExpectError(t, ts.PostRaw("/trade", tt.body), http.StatusBadRequest, tt.code)
			assert.NotEmpty(t, body.Error)
			if tt.field != "" {
				assert.Equal(t, tt.field, body.Field)
			}
		})
	}

	assert.Zero(t, ts.Memory.Len(), "rejected proposals are never stored")
}

func TestCreateTradeTreatsNullAsEmpty(t *testing.T) {
	ts := testutils.NewTestServer(t)

	resp := ts.PostRaw("/trade", `{"creatorWallet":"`+alice+`","counterpartyWallet":"`+bob+`",`+
		`"creatorOffer":{"tokens":null,"nfts":[{"id":3,"name":"Monkey"}],"solAmount":null},"counterpartyOffer":null}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body models.TradeResponse
	testutils.DecodeJSON(t, resp, &body)
	assert.Equal(t, types.StatusPending, body.Trade.Status)
	assert.True(t, body.Trade.CreatorOffer.SolAmount.IsZero())
	assert.Empty(t, body.Trade.CreatorOffer.Tokens)
	require.Len(t, body.Trade.CreatorOffer.NFTs, 1)
	assert.True(t, body.Trade.CounterpartyOffer.IsEmpty())
	assert.NotNil(t, body.Trade.CounterpartyOffer.Tokens)
}

func TestTransitionErrors(t *testing.T) {
	ts := testutils.NewTestServer(t)
	trade := ts.CreateTrade(t, alice, bob, testutils.TokenOffer("USDC", "25"), testutils.SolOffer("0.1"))

	t.Run("unknown trade", func(t *testing.T) {
		body := testutils.ExpectError(t, ts.Post("/trade/TRADE-NOPE0000/accept", testutils.NewTransition(bob)),
			http.StatusNotFound, models.ErrTradeNotFound)
		assert.Contains(t, body.Error, "TRADE-NOPE0000")
	})

	t.Run("creator cannot accept", func(t *testing.T) {
		testutils.ExpectError(t, ts.Post("/trade/"+trade.ID+"/accept", testutils.NewTransition(alice)),
			http.StatusForbidden, models.ErrForbidden)
	})

	t.Run("outsider cannot reject", func(t *testing.T) {
		testutils.ExpectError(t, ts.Post("/trade/"+trade.ID+"/reject", testutils.NewTransition(carol)),
			http.StatusForbidden, models.ErrForbidden)
	})

	t.Run("missing wallet", func(t *testing.T) {
		testutils.ExpectError(t, ts.Post("/trade/"+trade.ID+"/accept", nil),
			http.StatusForbidden, models.ErrForbidden)
	})

	t.Run("complete before accept", func(t *testing.T) {
		body := testutils.ExpectError(t, ts.Post("/trade/"+trade.ID+"/complete", testutils.NewCompletion(alice, "sig")),
			http.StatusConflict, models.ErrInvalidState)
		assert.Equal(t, "pending", body.Status)
	})

	t.Run("complete without settlement", func(t *testing.T) {
		body := testutils.ExpectError(t, ts.Post("/trade/"+trade.ID+"/complete", testutils.NewCompletion(alice, "")),
			http.StatusBadRequest, models.ErrValidationFailed)
		assert.Equal(t, "settlementRef", body.Field)
	})

	t.Run("unknown trade lookup", func(t *testing.T) {
		body := testutils.ExpectError(t, ts.Get("/trade/TRADE-MISSING1"), http.StatusNotFound, models.ErrTradeNotFound)
		assert.Equal(t, "Trade TRADE-MISSING1 not found", body.Error)
	})

	var fetched models.TradeResponse
	testutils.DecodeJSON(t, ts.Get("/trade/"+trade.ID), &fetched)
	assert.Equal(t, types.StatusPending, fetched.Trade.Status, "failed transitions leave the trade untouched")
}

// TestConcurrentAcceptAndReject races the two exits from pending
func TestConcurrentAcceptAndReject(t *testing.T) {
	ts := testutils.NewTestServer(t)

	for round := 0; round < 10; round++ {
		trade := ts.CreateTrade(t, alice, bob, testutils.SolOffer("1"), types.TradeOffer{})

		var wg sync.WaitGroup
		codes := make([]int, 2)
		for i, action := range []string{"accept", "reject"} {
			wg.Add(1)
			go func(i int, action string) {
				defer wg.Done()
				resp := ts.Post("/trade/"+trade.ID+"/"+action, testutils.NewTransition(bob))
				codes[i] = resp.StatusCode
				resp.Body.Close()
			}(i, action)
		}
		wg.Wait()

		assert.ElementsMatch(t, []int{http.StatusOK, http.StatusConflict}, codes, "round %d", round)
	}
}

func TestListTrades(t *testing.T) {
	ts := testutils.NewTestServer(t)

	first := ts.CreateTrade(t, alice, bob, testutils.SolOffer("1"), types.TradeOffer{})
	second := ts.CreateTrade(t, carol, alice, testutils.SolOffer("2"), types.TradeOffer{})
	ts.CreateTrade(t, bob, carol, testutils.SolOffer("3"), types.TradeOffer{})

	resp := ts.Post("/trade/"+second.ID+"/accept", testutils.NewTransition(alice))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	t.Run("both list routes and prefixes agree", func(t *testing.T) {
		for _, path := range []string{"/trade", "/trades", "/api/trade", "/api/trades"} {
			var list models.TradesResponse
			testutils.DecodeJSON(t, ts.Get(path+"?wallet="+alice), &list)
			require.Equal(t, 2, list.Count, path)
			assert.Equal(t, first.ID, list.Trades[0].ID, "oldest first")
			assert.Equal(t, second.ID, list.Trades[1].ID)
		}
	})

	t.Run("status filter", func(t *testing.T) {
		var list models.TradesResponse
		testutils.DecodeJSON(t, ts.Get("/trades?wallet="+alice+"&status=accepted"), &list)
		require.Equal(t, 1, list.Count)
		assert.Equal(t, second.ID, list.Trades[0].ID)

		testutils.ExpectError(t, ts.Get("/trades?wallet="+alice+"&status=settled"), http.StatusBadRequest, models.ErrInvalidRequest)
	})

	t.Run("unknown and blank wallets", func(t *testing.T) {
		for _, query := range []string{"?wallet=nobody", "?wallet=", ""} {
			resp := ts.Get("/trades" + query)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var list models.TradesResponse
			testutils.DecodeJSON(t, resp, &list)
			assert.Zero(t, list.Count)
			assert.NotNil(t, list.Trades)
		}
	})
}

func TestAPIPrefixRoutes(t *testing.T) {
	ts := testutils.NewTestServer(t)

	resp := ts.Post("/api/trade", testutils.NewCreateTradeRequest(alice, bob, testutils.SolOffer("4"), types.TradeOffer{}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.TradeResponse
	testutils.DecodeJSON(t, resp, &created)

	resp = ts.Post(fmt.Sprintf("/api/trade/%s/accept", created.Trade.ID), testutils.NewTransition(bob))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var fetched models.TradeResponse
	testutils.DecodeJSON(t, ts.Get("/trade/"+created.Trade.ID), &fetched)
	assert.Equal(t, types.StatusAccepted, fetched.Trade.Status)
}

func TestCrossCuttingBehaviour(t *testing.T) {
	ts := testutils.NewTestServer(t, testutils.WithAllowedOrigin("https://swap.example"))

	t.Run("preflight", func(t *testing.T) {
		resp := ts.Do(http.MethodOptions, "/trade", http.Header{
			"Origin":                        {"https://swap.example"},
			"Access-Control-Request-Method": {"POST"},
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "https://swap.example", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Content-Type")
	})

	t.Run("request id echoed", func(t *testing.T) {
		resp := ts.Do(http.MethodGet, "/trades", http.Header{"X-Request-ID": {"req-123"}})
		defer resp.Body.Close()
		assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))

		generated := ts.Get("/trades")
		defer generated.Body.Close()
		assert.NotEmpty(t, generated.Header.Get("X-Request-ID"))
	})

	t.Run("unknown route", func(t *testing.T) {
		testutils.ExpectError(t, ts.Get("/nope"), http.StatusNotFound, models.ErrRouteNotFound)
	})

	t.Run("wrong method", func(t *testing.T) {
		testutils.ExpectError(t, ts.Do(http.MethodDelete, "/trade/TRADE-AAAAAAAA", nil),
			http.StatusMethodNotAllowed, models.ErrMethodNotAllowed)
	})
}
