// Package sqlite stores trades in an embedded SQLite database (modernc.org/sqlite,
// no cgo). It suits single-node deployments that need trades to survive a restart
// without running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/PxPatel/p2p-swap/internal/storage"
	"github.com/PxPatel/p2p-swap/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id            TEXT    NOT NULL UNIQUE,
	creator_wallet      TEXT    NOT NULL,
	counterparty_wallet TEXT    NOT NULL,
	creator_offer       TEXT    NOT NULL,
	counterparty_offer  TEXT    NOT NULL,
	status              TEXT    NOT NULL,
	settlement_ref      TEXT    NOT NULL DEFAULT '',
	created_at_ms       INTEGER NOT NULL,
	updated_at_ms       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_creator_wallet ON trades (creator_wallet, seq);
CREATE INDEX IF NOT EXISTS idx_trades_counterparty_wallet ON trades (counterparty_wallet, seq);
`

const selectColumns = `
	trade_id, creator_wallet, counterparty_wallet, creator_offer, counterparty_offer,
	status, settlement_ref, created_at_ms, updated_at_ms`

// TradeStore implements storage.TradeStore on SQLite
type TradeStore struct {
	db *sql.DB
}

// Open creates the database file if needed and applies the schema
func Open(path string) (*TradeStore, error) {
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create sqlite directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One connection serializes writers, which SQLite does anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "apply %s", pragma)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	return &TradeStore{db: db}, nil
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

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (trade_id, creator_wallet, counterparty_wallet, creator_offer,
			counterparty_offer, status, settlement_ref, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (trade_id) DO NOTHING
	`,
		trade.ID, trade.CreatorWallet, trade.CounterpartyWallet,
		string(creatorOffer), string(counterpartyOffer),
		string(trade.Status), trade.SettlementRef,
		trade.CreatedAt.UnixMilli(), trade.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return errors.Wrapf(err, "insert trade %s", trade.ID)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return storage.ErrDuplicateID
	}
	return nil
}

func (s *TradeStore) Get(ctx context.Context, id string) (*types.Trade, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM trades WHERE trade_id = ?`, id)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM trades
		WHERE creator_wallet = ? OR counterparty_wallet = ?
		ORDER BY seq ASC
	`, wallet, wallet)
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
	result, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, updated_at_ms = ?, settlement_ref = ?
		WHERE trade_id = ? AND status = ?
	`, string(trade.Status), trade.UpdatedAt.UnixMilli(), trade.SettlementRef, trade.ID, string(expected))
	if err != nil {
		return errors.Wrapf(err, "update trade %s", trade.ID)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM trades WHERE trade_id = ?`, trade.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "check trade %s", trade.ID)
	}
	return storage.ErrStatusConflict
}

// Ping checks the database handle
func (s *TradeStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *TradeStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(row scanner) (*types.Trade, error) {
	var (
		trade                           types.Trade
		status                          string
		creatorOffer, counterpartyOffer string
		createdAt, updatedAt            int64
	)
	err := row.Scan(
		&trade.ID, &trade.CreatorWallet, &trade.CounterpartyWallet,
		&creatorOffer, &counterpartyOffer,
		&status, &trade.SettlementRef, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(creatorOffer), &trade.CreatorOffer); err != nil {
		return nil, errors.Wrap(err, "decode creator offer")
	}
	if err := json.Unmarshal([]byte(counterpartyOffer), &trade.CounterpartyOffer); err != nil {
		return nil, errors.Wrap(err, "decode counterparty offer")
	}
	trade.CreatorOffer = trade.CreatorOffer.Normalize()
	trade.CounterpartyOffer = trade.CounterpartyOffer.Normalize()
	trade.Status = types.Status(status)
	trade.CreatedAt = time.UnixMilli(createdAt).UTC()
	trade.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &trade, nil
}
