package storage

import (
	"context"
	"errors"

	"github.com/PxPatel/p2p-swap/internal/types"
)

var (
	// ErrNotFound is returned when no trade has the requested id
	ErrNotFound = errors.New("trade not found")

	// ErrDuplicateID is returned by Insert when the id is already taken
	ErrDuplicateID = errors.New("trade id already exists")

	// ErrStatusConflict is returned by UpdateStatus when the stored status
	// no longer matches the expected one
	ErrStatusConflict = errors.New("trade status changed concurrently")
)

// TradeStore abstracts trade persistence.
// Implementations can be in-memory, SQLite, PostgreSQL, Redis, a file journal, etc.
// Stores hand out copies: mutating a returned trade never changes stored state.
type TradeStore interface {
	// Insert stores a new trade, failing with ErrDuplicateID if the id exists
	Insert(ctx context.Context, trade *types.Trade) error

	// Get retrieves a trade by id, failing with ErrNotFound
	Get(ctx context.Context, id string) (*types.Trade, error)

	// GetByWallet returns the trades where wallet is creator or counterparty,
	// in insertion order
	GetByWallet(ctx context.Context, wallet string) ([]*types.Trade, error)

	// UpdateStatus writes trade.Status, trade.UpdatedAt and trade.SettlementRef
	// only if the stored status still equals expected (compare-and-swap).
	// Fails with ErrNotFound or ErrStatusConflict.
	UpdateStatus(ctx context.Context, trade *types.Trade, expected types.Status) error

	// Close releases any resources held by the store
	Close() error
}

// WriteOnly is implemented by journal layers that record writes but cannot
// answer reads or decide a compare-and-swap
type WriteOnly interface {
	WriteOnly() bool
}

func isWriteOnly(store TradeStore) bool {
	w, ok := store.(WriteOnly)
	return ok && w.WriteOnly()
}

// Cache is implemented by layers that can hold a copy of a trade decided by
// another layer. Put inserts the trade or overwrites the stored copy.
type Cache interface {
	Put(ctx context.Context, trade *types.Trade) error
}

// Pinger is implemented by stores backed by a remote service
type Pinger interface {
	Ping(ctx context.Context) error
}
