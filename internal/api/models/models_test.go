package models

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/p2p-swap/internal/trading"
	"github.com/PxPatel/p2p-swap/internal/types"
)

func TestFromErrorMapsKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   ErrorCode
	}{
		{&trading.Error{Kind: trading.KindValidation, Field: "creatorWallet", Message: "Creator wallet is required"}, http.StatusBadRequest, ErrValidationFailed},
		{&trading.Error{Kind: trading.KindNotFound, Message: "Trade TRADE-X not found"}, http.StatusNotFound, ErrTradeNotFound},
		{&trading.Error{Kind: trading.KindAuthorization, Message: "nope"}, http.StatusForbidden, ErrForbidden},
		{&trading.Error{Kind: trading.KindInvalidState, Status: "rejected", Message: "Trade is rejected, expected pending"}, http.StatusConflict, ErrInvalidState},
		{&trading.Error{Kind: trading.KindUnexpected, Message: "Failed to store trade", Err: errors.New("pq: password leaked")}, http.StatusInternalServerError, ErrInternalError},
		{errors.New("plain"), http.StatusInternalServerError, ErrInternalError},
	}

	for _, tt := range tests {
		httpErr := FromError(tt.err)
		assert.Equal(t, tt.status, httpErr.StatusCode)
		assert.Equal(t, tt.code, httpErr.Body.Code)
		assert.False(t, httpErr.Body.Success)
	}

	conflict := FromError(&trading.Error{Kind: trading.KindInvalidState, Status: "rejected", Message: "Trade is rejected, expected pending"})
	assert.Equal(t, "rejected", conflict.Body.Status)
	assert.Contains(t, conflict.Body.Error, "rejected")

	internal := FromError(&trading.Error{Kind: trading.KindUnexpected, Message: "Failed", Err: errors.New("secret detail")})
	assert.Equal(t, "Internal server error", internal.Body.Error)
}

func TestValidateCreateTrade(t *testing.T) {
	valid := `{
		"creatorWallet": "alice",
		"counterpartyWallet": "bob",
		"creatorOffer": {"tokens": [{"id": 1, "name": "USD Coin", "symbol": "USDC", "amount": 25.5}], "nfts": [], "solAmount": 0},
		"counterpartyOffer": {"solAmount": 1.5}
	}`
	assert.Nil(t, ValidateCreateTrade([]byte(valid)))

	// null offers and amounts decode to zero values
	assert.Nil(t, ValidateCreateTrade([]byte(`{"creatorOffer": {"tokens": null, "nfts": null, "solAmount": null}, "counterpartyOffer": null}`)))

	// missing wallets are left to the lifecycle service
	assert.Nil(t, ValidateCreateTrade([]byte(`{"creatorOffer": {}}`)))

	httpErr := ValidateCreateTrade([]byte(`{"creatorWallet": 42}`))
	require.NotNil(t, httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, "creatorWallet", httpErr.Body.Field)

	httpErr = ValidateCreateTrade([]byte(`{"creatorOffer": {"tokens": [{"id": 1, "amount": true}]}}`))
	require.NotNil(t, httpErr)
	assert.Equal(t, "creatorOffer.tokens.0.amount", httpErr.Body.Field)

	httpErr = ValidateCreateTrade([]byte(`[1,2]`))
	require.NotNil(t, httpErr)
	assert.Equal(t, ErrValidationFailed, httpErr.Body.Code)

	httpErr = ValidateCreateTrade([]byte(`{not json`))
	require.NotNil(t, httpErr)
	assert.Equal(t, "Invalid JSON body", httpErr.Body.Error)

	httpErr = ValidateCreateTrade(nil)
	require.NotNil(t, httpErr)
	assert.Equal(t, ErrInvalidRequest, httpErr.Body.Code)
}

func TestDecodeCreateTradeAcceptsNulls(t *testing.T) {
	body := `{
		"creatorWallet": "alice",
		"counterpartyWallet": "bob",
		"creatorOffer": {"tokens": [{"id": 1, "symbol": "USDC", "amount": "3"}], "solAmount": null},
		"counterpartyOffer": null
	}`
	r := httptest.NewRequest(http.MethodPost, "/trade", strings.NewReader(body))

	req, httpErr := DecodeCreateTrade(r)
	require.Nil(t, httpErr)
	assert.True(t, req.CreatorOffer.SolAmount.IsZero())
	require.Len(t, req.CreatorOffer.Tokens, 1)
	assert.True(t, req.CreatorOffer.Tokens[0].Amount.Equal(decimal.NewFromInt(3)))
	assert.True(t, req.CounterpartyOffer.IsEmpty())
}

func TestTradeDTOUsesEpochMillis(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 123000000, time.UTC)
	trade := &types.Trade{
		ID:                 "TRADE-ABCD1234",
		CreatorWallet:      "alice",
		CounterpartyWallet: "bob",
		CreatorOffer:       types.TradeOffer{SolAmount: decimal.RequireFromString("1.5")},
		Status:             types.StatusPending,
		CreatedAt:          created,
		UpdatedAt:          created.Add(time.Second),
	}

	data, err := json.Marshal(NewTradeDTO(trade))
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, float64(created.UnixMilli()), wire["createdAt"])
	assert.Equal(t, float64(created.UnixMilli()+1000), wire["updatedAt"])
	assert.NotContains(t, wire, "settlementRef")

	offer := wire["creatorOffer"].(map[string]interface{})
	assert.Equal(t, 1.5, offer["solAmount"])
	assert.Equal(t, []interface{}{}, offer["tokens"])
}

func TestParseStatusFilter(t *testing.T) {
	status, httpErr := ParseStatusFilter(" Accepted ")
	assert.Nil(t, httpErr)
	assert.Equal(t, types.StatusAccepted, status)

	status, httpErr = ParseStatusFilter("")
	assert.Nil(t, httpErr)
	assert.Equal(t, types.Status(""), status)

	_, httpErr = ParseStatusFilter("cancelled")
	require.NotNil(t, httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}
