// Package postgres stores trades in PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/PxPatel/p2p-swap/internal/storage"
	"github.com/PxPatel/p2p-swap/internal/types"
)

const uniqueViolation = "23505"

const selectColumns = `
	trade_id, creator_wallet, counterparty_wallet, creator_offer, counterparty_offer,
	status, settlement_ref, created_at, updated_at`

// TradeStore implements storage.TradeStore using PostgreSQL
type TradeStore struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewTradeStore connects, runs migrations and returns a store that closes
// the pool on Close
func NewTradeStore(ctx context.Context, cfg Config) (*TradeStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "migration failed")
	}

	return &TradeStore{pool: pool, ownsPool: true}, nil
}

// NewTradeStoreWithPool wraps an existing, migrated pool
func NewTradeStoreWithPool(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

func (s *TradeStore) Insert(ctx context.Context, trade *types.Trade) error {
	creatorOffer, err := json.Marshal(trade.CreatorOffer.Normalize())
	if err != nil {
		return errors.Wrap(err, "encode creator offer")
	}
	counterpartyOffer, err := json.Marshal(trade.CounterpartyOffer.Normalize())
	if err != nil {
		return errors.Wrap(err, "encode counterparty offer")
	}

	query := `
		INSERT INTO trades (trade_id, creator_wallet, counterparty_wallet, creator_offer,
			counterparty_offer, status, settlement_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.pool.Exec(ctx, query,
		trade.ID, trade.CreatorWallet, trade.CounterpartyWallet,
		string(creatorOffer), string(counterpartyOffer),
		string(trade.Status), trade.SettlementRef, trade.CreatedAt, trade.UpdatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrDuplicateID
	}
	if err != nil {
		return errors.Wrapf(err, "insert trade %s", trade.ID)
	}
	return nil
}

func (s *TradeStore) Get(ctx context.Context, id string) (*types.Trade, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM trades WHERE trade_id = $1`, id)
	trade, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get trade %s", id)
	}
	return trade, nil
}

func (s *TradeStore) GetByWallet(ctx context.Context, wallet string) ([]*types.Trade, error) {
	trades := []*types.Trade{}
	if wallet == "" {
		return trades, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM trades
		WHERE creator_wallet = $1 OR counterparty_wallet = $1
		ORDER BY seq ASC
	`, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "query trades by wallet")
	}
	defer rows.Close()

	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate trades")
	}
	return trades, nil
}

func (s *TradeStore) UpdateStatus(ctx context.Context, trade *types.Trade, expected types.Status) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE trades
		SET status = $2, updated_at = $3, settlement_ref = $4
		WHERE trade_id = $1 AND status = $5
	`, trade.ID, string(trade.Status), trade.UpdatedAt, trade.SettlementRef, string(expected))
	if err != nil {
		return errors.Wrapf(err, "update trade %s", trade.ID)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trades WHERE trade_id = $1)`, trade.ID).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check trade %s", trade.ID)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrStatusConflict
}

// Ping checks the connection to the server
func (s *TradeStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *TradeStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

func scanTrade(row pgx.Row) (*types.Trade, error) {
	var (
		trade             types.Trade
		status            string
		creatorOffer      []byte
		counterpartyOffer []byte
		createdAt         time.Time
		updatedAt         time.Time
	)
	err := row.Scan(
		&trade.ID, &trade.CreatorWallet, &trade.CounterpartyWallet,
		&creatorOffer, &counterpartyOffer,
		&status, &trade.SettlementRef, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(creatorOffer, &trade.CreatorOffer); err != nil {
		return nil, errors.Wrap(err, "decode creator offer")
	}
	if err := json.Unmarshal(counterpartyOffer, &trade.CounterpartyOffer); err != nil {
		return nil, errors.Wrap(err, "decode counterparty offer")
	}
	trade.CreatorOffer = trade.CreatorOffer.Normalize()
	trade.CounterpartyOffer = trade.CounterpartyOffer.Normalize()
	trade.Status = types.Status(status)
	trade.CreatedAt = createdAt.UTC()
	trade.UpdatedAt = updatedAt.UTC()
	return &trade, nil
}
