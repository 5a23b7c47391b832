// Package store defines the persistence interface for wallet trade logs.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing). Any backend is acceptable as long as
// it preserves append order — the engine recomputes every derived value
// from the raw log and never trusts stored aggregates.
package store

import (
	"context"
	"errors"

	"github.com/botfolio/portfolio-engine/internal/model"
)

// ErrWalletNotFound is returned when appending to or loading a wallet that
// was never created.
var ErrWalletNotFound = errors.New("store: wallet not found")

// Store is the persistence interface for the ledger engine.
type Store interface {
	// CreateWallet registers a wallet. Creating an existing wallet is a
	// no-op.
	CreateWallet(ctx context.Context, name string) error

	// ListWallets returns all wallet names in registration order.
	ListWallets(ctx context.Context) ([]string, error)

	// AppendTrade appends an immutable trade record to a wallet's log.
	AppendTrade(ctx context.Context, wallet string, t *model.Trade) error

	// LoadLedger returns a wallet's full trade log in append order.
	LoadLedger(ctx context.Context, wallet string) ([]model.Trade, error)
}
