package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/botfolio/portfolio-engine/internal/metrics"
	"github.com/botfolio/portfolio-engine/internal/model"
	"github.com/botfolio/portfolio-engine/internal/store"
)

// ErrWalletNotFound is returned when looking up a wallet that was never
// registered with the portfolio.
var ErrWalletNotFound = errors.New("ledger: wallet not found")

// Portfolio owns the full set of wallet ledgers. Each ledger is exclusively
// owned — callers share the *Ledger handle, never a copy of its data — and
// the set only grows. A single store instance is shared by reference across
// all ledgers.
type Portfolio struct {
	store store.Store
	now   func() time.Time

	mu      sync.RWMutex
	order   []string
	wallets map[string]*Ledger
}

// NewPortfolio creates an empty portfolio backed by the given store.
// A nil now defaults to time.Now in UTC.
func NewPortfolio(st store.Store, now func() time.Time) *Portfolio {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Portfolio{
		store:   st,
		now:     now,
		wallets: make(map[string]*Ledger),
	}
}

// Load opens a ledger for every wallet already present in the store, in
// the store's registration order. Called once at startup.
func (p *Portfolio) Load(ctx context.Context) error {
	names, err := p.store.ListWallets(ctx)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}
	for _, name := range names {
		if _, err := p.AddWallet(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// AddWallet registers a wallet, creating its ledger if absent. Adding an
// existing wallet is a no-op that returns the existing ledger.
func (p *Portfolio) AddWallet(ctx context.Context, name string) (*Ledger, error) {
	p.mu.RLock()
	l, ok := p.wallets[name]
	p.mu.RUnlock()
	if ok {
		return l, nil
	}

	opened, err := Open(ctx, p.store, name, p.now)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Lost a race with a concurrent AddWallet: keep the first ledger so
	// there is exactly one writer chain per wallet.
	if l, ok := p.wallets[name]; ok {
		return l, nil
	}
	p.wallets[name] = opened
	p.order = append(p.order, name)
	metrics.RegisteredWallets.Inc()
	return opened, nil
}

// Wallet returns the ledger for a registered wallet.
func (p *Portfolio) Wallet(name string) (*Ledger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	l, ok := p.wallets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}
	return l, nil
}

// WalletNames returns registered wallet names in registration order.
func (p *Portfolio) WalletNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, len(p.order))
	copy(names, p.order)
	return names
}

// Summarize combines all wallet ledgers into one portfolio summary, in
// wallet registration order. Read-only: it never mutates ledgers and is
// safe to call concurrently with appends on any wallet.
func (p *Portfolio) Summarize() model.PortfolioSummary {
	p.mu.RLock()
	ledgers := make([]*Ledger, 0, len(p.order))
	for _, name := range p.order {
		ledgers = append(ledgers, p.wallets[name])
	}
	p.mu.RUnlock()

	summary := model.PortfolioSummary{
		Timestamp:   p.now(),
		WalletCount: len(ledgers),
		Wallets:     make([]model.WalletPerformance, 0, len(ledgers)),
	}
	for _, l := range ledgers {
		perf := l.Performance()
		summary.Wallets = append(summary.Wallets, perf)
		summary.TotalValue = summary.TotalValue.Add(perf.CurrentValue)
		summary.TotalInvested = summary.TotalInvested.Add(perf.CostBasis)
	}
	summary.TotalReturn = summary.TotalValue.Sub(summary.TotalInvested)
	summary.TotalReturnPct = returnPct(summary.TotalValue, summary.TotalInvested)
	return summary
}
