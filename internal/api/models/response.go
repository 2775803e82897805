package models

import (
	"github.com/PxPatel/p2p-swap/internal/assets"
	"github.com/PxPatel/p2p-swap/internal/types"
)

// BaseResponse is the base structure for all successful API responses
type BaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TradeDTO is the wire form of a trade; timestamps are epoch milliseconds
type TradeDTO struct {
	ID                 string           `json:"id"`
	CreatorWallet      string           `json:"creatorWallet"`
	CounterpartyWallet string           `json:"counterpartyWallet"`
	CreatorOffer       types.TradeOffer `json:"creatorOffer"`
	CounterpartyOffer  types.TradeOffer `json:"counterpartyOffer"`
	Status             types.Status     `json:"status"`
	SettlementRef      string           `json:"settlementRef,omitempty"`
	CreatedAt          int64            `json:"createdAt"`
	UpdatedAt          int64            `json:"updatedAt"`
}

// NewTradeDTO converts a domain trade
func NewTradeDTO(trade *types.Trade) TradeDTO {
	return TradeDTO{
		ID:                 trade.ID,
		CreatorWallet:      trade.CreatorWallet,
		CounterpartyWallet: trade.CounterpartyWallet,
		CreatorOffer:       trade.CreatorOffer.Normalize(),
		CounterpartyOffer:  trade.CounterpartyOffer.Normalize(),
		Status:             trade.Status,
		SettlementRef:      trade.SettlementRef,
		CreatedAt:          trade.CreatedAt.UnixMilli(),
		UpdatedAt:          trade.UpdatedAt.UnixMilli(),
	}
}

// NewTradeDTOs converts a list, never returning nil
func NewTradeDTOs(trades []*types.Trade) []TradeDTO {
	out := make([]TradeDTO, 0, len(trades))
	for _, trade := range trades {
		out = append(out, NewTradeDTO(trade))
	}
	return out
}

// TradeResponse carries a single trade
type TradeResponse struct {
	BaseResponse
	Trade TradeDTO `json:"trade"`
}

// TradesResponse carries a wallet's trades
type TradesResponse struct {
	BaseResponse
	Trades []TradeDTO `json:"trades"`
	Count  int        `json:"count"`
}

// TradeEventMessage is pushed over the trade stream websocket
type TradeEventMessage struct {
	Type       types.EventType `json:"type"`
	Trade      TradeDTO        `json:"trade"`
	OccurredAt int64           `json:"occurredAt"`
}

// NewTradeEventMessage converts a lifecycle event
func NewTradeEventMessage(event types.TradeEvent) TradeEventMessage {
	return TradeEventMessage{
		Type:       event.Type,
		Trade:      NewTradeDTO(event.Trade),
		OccurredAt: event.OccurredAt.UnixMilli(),
	}
}

// NFTsResponse lists the NFTs a wallet holds
type NFTsResponse struct {
	BaseResponse
	Wallet string       `json:"wallet"`
	NFTs   []assets.NFT `json:"nfts"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	BaseResponse
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}
