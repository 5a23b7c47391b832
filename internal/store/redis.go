package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botfolio/portfolio-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for full-ledger loads. Appends go to the primary store and
// invalidate the cached ledger; loads check Redis first then fall back to
// the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) CreateWallet(ctx context.Context, name string) error {
	return s.primary.CreateWallet(ctx, name)
}

func (s *CachedStore) ListWallets(ctx context.Context) ([]string, error) {
	return s.primary.ListWallets(ctx)
}

// AppendTrade writes to the primary store and invalidates the cached
// ledger; the next load re-populates it.
func (s *CachedStore) AppendTrade(ctx context.Context, wallet string, t *model.Trade) error {
	if err := s.primary.AppendTrade(ctx, wallet, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, ledgerKey(wallet))
	return nil
}

func (s *CachedStore) LoadLedger(ctx context.Context, wallet string) ([]model.Trade, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, ledgerKey(wallet)).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	// Cache miss: read from primary.
	trades, err := s.primary.LoadLedger(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, ledgerKey(wallet), data, s.ttl)
	}
	return trades, nil
}

func ledgerKey(wallet string) string { return fmt.Sprintf("ledger:%s", wallet) }
