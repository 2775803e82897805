package testutils

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/p2p-swap/internal/api/models"
	"github.com/PxPatel/p2p-swap/internal/types"
)

// Request builders for common test cases

// SolOffer offers amount SOL and nothing else
func SolOffer(amount string) types.TradeOffer {
	return types.TradeOffer{SolAmount: decimal.RequireFromString(amount)}
}

// TokenOffer offers a single fungible token
func TokenOffer(symbol, amount string) types.TradeOffer {
	return types.TradeOffer{
		Tokens: []types.TokenItem{{
			ID:     1,
			Name:   symbol,
			Symbol: symbol,
			Amount: decimal.RequireFromString(amount),
		}},
	}
}

// NFTOffer offers a single NFT
func NFTOffer(id int, name string) types.TradeOffer {
	return types.TradeOffer{
		NFTs: []types.NFTItem{{
			ID:         id,
			Name:       name,
			Collection: "Test Collection",
			ImageRef:   "https://example.com/" + name + ".png",
		}},
	}
}

// NewCreateTradeRequest creates a create trade request
func NewCreateTradeRequest(creator, counterparty string, creatorOffer, counterpartyOffer types.TradeOffer) models.CreateTradeRequest {
	return models.CreateTradeRequest{
		CreatorWallet:      creator,
		CounterpartyWallet: counterparty,
		CreatorOffer:       creatorOffer,
		CounterpartyOffer:  counterpartyOffer,
	}
}

// NewTransition creates an accept or reject body
func NewTransition(wallet string) models.TransitionRequest {
	return models.TransitionRequest{WalletAddress: wallet}
}

// NewCompletion creates a complete body
func NewCompletion(wallet, settlementRef string) models.CompleteTradeRequest {
	return models.CompleteTradeRequest{WalletAddress: wallet, SettlementRef: settlementRef}
}

// CreateTrade posts a proposal and returns the stored trade
func (ts *TestServer) CreateTrade(t testing.TB, creator, counterparty string, creatorOffer, counterpartyOffer types.TradeOffer) models.TradeDTO {
	resp := ts.Post("/trade", NewCreateTradeRequest(creator, counterparty, creatorOffer, counterpartyOffer))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body models.TradeResponse
	DecodeJSON(t, resp, &body)
	require.True(t, body.Success)
	return body.Trade
}

// ExpectError decodes an error response and checks its status and code
func ExpectError(t testing.TB, resp *http.Response, status int, code models.ErrorCode) models.ErrorResponse {
	require.Equal(t, status, resp.StatusCode)

	var body models.ErrorResponse
	DecodeJSON(t, resp, &body)
	require.False(t, body.Success)
	require.Equal(t, code, body.Code)
	return body
}
