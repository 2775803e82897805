package redis

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/PxPatel/p2p-swap/internal/storage"
	"github.com/PxPatel/p2p-swap/internal/types"
)

const (
	tradeKeyPrefix  = "trade:"
	walletKeyPrefix = "wallet_trades:"
	sequenceKey     = "trades:seq"

	maxCASAttempts = 8
)

// TradeStore implements storage.TradeStore on Redis. Nothing expires:
// trades live as long as the database does.
type TradeStore struct {
	client *redis.Client
	prefix string
}

// NewTradeStore connects to Redis and returns a store owning the client
func NewTradeStore(ctx context.Context, cfg Config) (*TradeStore, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewTradeStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewTradeStoreWithClient wraps an existing client
func NewTradeStoreWithClient(client *redis.Client, keyPrefix string) *TradeStore {
	return &TradeStore{client: client, prefix: keyPrefix}
}

func (s *TradeStore) tradeKey(id string) string {
	return s.prefix + tradeKeyPrefix + id
}

func (s *TradeStore) walletKey(wallet string) string {
	return s.prefix + walletKeyPrefix + wallet
}

func (s *TradeStore) Insert(ctx context.Context, trade *types.Trade) error {
	data, err := encodeTrade(trade)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, s.tradeKey(trade.ID), data, 0).Result()
	if err != nil {
		return errors.Wrapf(err, "insert trade %s", trade.ID)
	}
	if !created {
		return storage.ErrDuplicateID
	}

	seq, err := s.client.Incr(ctx, s.prefix+sequenceKey).Result()
	if err != nil {
		return errors.Wrap(err, "allocate trade sequence")
	}

	member := redis.Z{Score: float64(seq), Member: trade.ID}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.walletKey(trade.CreatorWallet), member)
		if trade.CounterpartyWallet != trade.CreatorWallet {
			pipe.ZAdd(ctx, s.walletKey(trade.CounterpartyWallet), member)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "index trade %s", trade.ID)
	}
	return nil
}

// Put overwrites the document for trade, indexing it first if it is new
func (s *TradeStore) Put(ctx context.Context, trade *types.Trade) error {
	data, err := encodeTrade(trade)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		replaced, err := s.client.SetXX(ctx, s.tradeKey(trade.ID), data, 0).Result()
		if err != nil {
			return errors.Wrapf(err, "put trade %s", trade.ID)
		}
		if replaced {
			return nil
		}
		err = s.Insert(ctx, trade)
		if !errors.Is(err, storage.ErrDuplicateID) {
			return err
		}
		// created concurrently; overwrite it on the next pass
	}
	return errors.Errorf("put trade %s: key keeps changing", trade.ID)
}

func (s *TradeStore) Get(ctx context.Context, id string) (*types.Trade, error) {
	data, err := s.client.Get(ctx, s.tradeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get trade %s", id)
	}
	return decodeTrade(data)
}

func (s *TradeStore) GetByWallet(ctx context.Context, wallet string) ([]*types.Trade, error) {
	trades := []*types.Trade{}
	if wallet == "" {
		return trades, nil
	}

	ids, err := s.client.ZRange(ctx, s.walletKey(wallet), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read wallet index")
	}
	if len(ids) == 0 {
		return trades, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.tradeKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read wallet trades")
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// index entry without a document; the insert did not finish
			continue
		}
		trade, err := decodeTrade([]byte(raw))
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// UpdateStatus performs the compare-and-swap inside WATCH/MULTI, retrying
// when another client touches the key in between
func (s *TradeStore) UpdateStatus(ctx context.Context, trade *types.Trade, expected types.Status) error {
	key := s.tradeKey(trade.ID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		stored, err := decodeTrade(data)
		if err != nil {
			return err
		}
		if stored.Status != expected {
			return storage.ErrStatusConflict
		}

		stored.Status = trade.Status
		stored.UpdatedAt = trade.UpdatedAt
		stored.SettlementRef = trade.SettlementRef
		updated, err := encodeTrade(stored)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err == nil || errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrStatusConflict) {
			return err
		}
		return errors.Wrapf(err, "update trade %s", trade.ID)
	}
	return storage.ErrStatusConflict
}

// Ping checks the connection to the server
func (s *TradeStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *TradeStore) Close() error {
	return s.client.Close()
}

func encodeTrade(trade *types.Trade) ([]byte, error) {
	data, err := json.Marshal(trade)
	if err != nil {
		return nil, errors.Wrapf(err, "encode trade %s", trade.ID)
	}
	return data, nil
}

func decodeTrade(data []byte) (*types.Trade, error) {
	var trade types.Trade
	if err := json.Unmarshal(data, &trade); err != nil {
		return nil, errors.Wrap(err, "decode trade")
	}
	trade.CreatorOffer = trade.CreatorOffer.Normalize()
	trade.CounterpartyOffer = trade.CounterpartyOffer.Normalize()
	trade.CreatedAt = trade.CreatedAt.UTC()
	trade.UpdatedAt = trade.UpdatedAt.UTC()
	return &trade, nil
}
