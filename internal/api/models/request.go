package models

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/PxPatel/p2p-swap/internal/types"
)

// MaxBodyBytes caps request bodies
const MaxBodyBytes = 1 << 20

// CreateTradeRequest is the body of POST /trade
type CreateTradeRequest struct {
	CreatorWallet      string           `json:"creatorWallet"`
	CounterpartyWallet string           `json:"counterpartyWallet"`
	CreatorOffer       types.TradeOffer `json:"creatorOffer"`
	CounterpartyOffer  types.TradeOffer `json:"counterpartyOffer"`
}

// TransitionRequest is the body of POST /trade/{id}/accept and /reject
type TransitionRequest struct {
	WalletAddress string `json:"walletAddress"`
}

// CompleteTradeRequest is the body of POST /trade/{id}/complete
type CompleteTradeRequest struct {
	WalletAddress string `json:"walletAddress"`
	SettlementRef string `json:"settlementRef"`
}

// DecodeCreateTrade reads, schema-checks and decodes a create request.
// Semantic checks (required wallets, empty offers) stay with the lifecycle
// service so there is one source for their messages.
func DecodeCreateTrade(r *http.Request) (*CreateTradeRequest, *HTTPError) {
	body, httpErr := readBody(r)
	if httpErr != nil {
		return nil, httpErr
	}
	if httpErr := ValidateCreateTrade(body); httpErr != nil {
		return nil, httpErr
	}

	var req CreateTradeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, ErrBadRequest("Invalid JSON body")
	}
	return &req, nil
}

// DecodeJSON decodes a small JSON body into dst. An empty body leaves dst zeroed.
func DecodeJSON(r *http.Request, dst interface{}) *HTTPError {
	body, httpErr := readBody(r)
	if httpErr != nil {
		return httpErr
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return ErrBadRequest("Invalid JSON body")
	}
	return nil
}

func readBody(r *http.Request) ([]byte, *HTTPError) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, ErrBadRequest("Failed to read request body")
	}
	if len(body) > MaxBodyBytes {
		return nil, NewHTTPError(http.StatusRequestEntityTooLarge, ErrInvalidRequest, "Request body too large")
	}
	return body, nil
}

// ParseStatusFilter validates an optional ?status= value
func ParseStatusFilter(raw string) (types.Status, *HTTPError) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", nil
	}
	status := types.Status(raw)
	if !status.Valid() {
		return "", ErrBadRequest("Unknown status filter: " + raw).WithField("status")
	}
	return status, nil
}
