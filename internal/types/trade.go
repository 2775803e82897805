package types

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as plain JSON numbers, the way wallet UIs send them.
	decimal.MarshalJSONWithoutQuotes = true
}

// Status is the lifecycle state of a trade
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// TokenItem is a quantity of a fungible token offered in a trade
type TokenItem struct {
	ID     int             `json:"id"`
	Name   string          `json:"name"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// NFTItem is a single non-fungible asset offered in a trade
type NFTItem struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Collection string `json:"collection"`
	ImageRef   string `json:"imageRef"`
}

// TradeOffer is one side's contribution to a trade.
// Tokens and NFTs keep the order in which they were selected.
type TradeOffer struct {
	Tokens    []TokenItem     `json:"tokens"`
	NFTs      []NFTItem       `json:"nfts"`
	SolAmount decimal.Decimal `json:"solAmount"`
}

// IsEmpty reports whether the offer contributes nothing
func (o TradeOffer) IsEmpty() bool {
	return len(o.Tokens) == 0 && len(o.NFTs) == 0 && !o.SolAmount.IsPositive()
}

// Normalize replaces nil slices with empty ones so the offer encodes as [] rather than null
func (o TradeOffer) Normalize() TradeOffer {
	if o.Tokens == nil {
		o.Tokens = []TokenItem{}
	}
	if o.NFTs == nil {
		o.NFTs = []NFTItem{}
	}
	return o
}

// Clone returns a deep copy of the offer
func (o TradeOffer) Clone() TradeOffer {
	c := TradeOffer{SolAmount: o.SolAmount}
	if o.Tokens != nil {
		c.Tokens = make([]TokenItem, len(o.Tokens))
		copy(c.Tokens, o.Tokens)
	}
	if o.NFTs != nil {
		c.NFTs = make([]NFTItem, len(o.NFTs))
		copy(c.NFTs, o.NFTs)
	}
	return c
}

// Trade is a proposed exchange between two wallets
type Trade struct {
	ID                 string     `json:"id"`
	CreatorWallet      string     `json:"creatorWallet"`
	CounterpartyWallet string     `json:"counterpartyWallet"`
	CreatorOffer       TradeOffer `json:"creatorOffer"`
	CounterpartyOffer  TradeOffer `json:"counterpartyOffer"`
	Status             Status     `json:"status"`
	SettlementRef      string     `json:"settlementRef,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of the trade
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	c := *t
	c.CreatorOffer = t.CreatorOffer.Clone()
	c.CounterpartyOffer = t.CounterpartyOffer.Clone()
	return &c
}

// Involves reports whether wallet is the creator or the counterparty
func (t *Trade) Involves(wallet string) bool {
	return wallet != "" && (t.CreatorWallet == wallet || t.CounterpartyWallet == wallet)
}

// FormatWalletAddress shortens a wallet address for display, e.g. "7xKX...gAsU"
func FormatWalletAddress(address string) string {
	if address == "" {
		return ""
	}
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
