// Package ledger implements the per-wallet running-balance ledger and the
// portfolio-level aggregation over it.
//
// Every derived value — running balance, cost basis, return, APY — is
// computed here from the raw append-only log. The backing store only ever
// sees raw trade records; it is never asked to evaluate anything.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/botfolio/portfolio-engine/internal/metrics"
	"github.com/botfolio/portfolio-engine/internal/model"
	"github.com/botfolio/portfolio-engine/internal/store"
)

// ErrInvalidQuantity is returned by Append for trades with a non-positive
// quantity. This is the domain half of validation: the validator checks
// shape and types, the ledger checks invariants.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

var hundred = decimal.NewFromInt(100)

// Ledger is one wallet's ordered trade history. It is an append-only log:
// entries are never edited, deleted, or merged. The running-balance chain
// is kept in append order — the order trades arrived, not their timestamp
// order — so out-of-order deliveries are recorded as received.
//
// Appends write through to the injected store before mutating the chain;
// a store failure leaves the ledger untouched.
type Ledger struct {
	name  string
	store store.Store
	now   func() time.Time

	mu         sync.Mutex
	trades     []model.Trade
	balance    decimal.Decimal // running balance after the last trade
	costBasis  decimal.Decimal // Σ TotalValue over BUY trades
	firstTrade time.Time       // timestamp of the first appended trade
}

// Open creates the wallet in the store if absent and rebuilds the ledger
// from its persisted log. Stored running balances, if any backend kept
// them, are ignored: the chain is recomputed from scratch.
func Open(ctx context.Context, st store.Store, name string, now func() time.Time) (*Ledger, error) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if err := st.CreateWallet(ctx, name); err != nil {
		return nil, fmt.Errorf("create wallet %s: %w", name, err)
	}
	persisted, err := st.LoadLedger(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", name, err)
	}

	l := &Ledger{name: name, store: st, now: now}
	for _, t := range persisted {
		l.balance = l.balance.Add(t.Signed())
		t.RunningBalance = l.balance
		t.Wallet = name
		if t.Action == model.ActionBuy {
			l.costBasis = l.costBasis.Add(t.TotalValue)
		}
		if len(l.trades) == 0 {
			l.firstTrade = t.Timestamp
		}
		l.trades = append(l.trades, t)
	}
	return l, nil
}

// Name returns the wallet name.
func (l *Ledger) Name() string { return l.name }

// Append validates the domain invariant (quantity > 0), persists the trade,
// and extends the running-balance chain. The stored record, including its
// assigned ID and running balance, is returned.
//
// Appends within one ledger are serialized by an exclusive lock so the
// chain stays consistent under concurrent ingestion. Duplicate submission
// of the same logical trade produces two entries — deduplication, if
// wanted, is the caller's job and needs an externally supplied ID.
func (l *Ledger) Append(ctx context.Context, t model.Trade) (model.Trade, error) {
	if !t.Quantity.IsPositive() {
		return model.Trade{}, fmt.Errorf("%w: %s", ErrInvalidQuantity, t.Quantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t.Wallet = l.name
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.RunningBalance = l.balance.Add(t.Signed())

	if err := l.store.AppendTrade(ctx, l.name, &t); err != nil {
		return model.Trade{}, fmt.Errorf("append to %s: %w", l.name, err)
	}

	l.balance = t.RunningBalance
	if t.Action == model.ActionBuy {
		l.costBasis = l.costBasis.Add(t.TotalValue)
	}
	if len(l.trades) == 0 {
		l.firstTrade = t.Timestamp
	}
	l.trades = append(l.trades, t)

	metrics.TradesAppended.WithLabelValues(l.name, t.Action).Inc()
	return t, nil
}

// CostBasis is the total capital deployed: the sum of TotalValue over all
// BUY trades. SELL trades do not reduce it — this is deliberately not a
// tax-lot-adjusted basis.
func (l *Ledger) CostBasis() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.costBasis
}

// CurrentValue is the running balance after the most recently appended
// trade, or zero for an empty ledger. Note this is the signed ledger
// balance used as a proxy for value, not a mark-to-market valuation —
// no market pricing source feeds this engine.
func (l *Ledger) CurrentValue() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// TotalReturn is CurrentValue - CostBasis.
func (l *Ledger) TotalReturn() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance.Sub(l.costBasis)
}

// TotalReturnPct is (CurrentValue/CostBasis - 1) * 100, or zero when the
// cost basis is zero. The zero guard is a defined outcome, not an error,
// so an all-SELL ledger never faults.
func (l *Ledger) TotalReturnPct() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return returnPct(l.balance, l.costBasis)
}

// APY annualizes the return assuming compounding from the first trade's
// timestamp to now: ((value/basis)^(365/days) - 1) * 100. Days elapsed
// floors at 1 so a same-day ledger never divides by zero. Zero when cost
// basis or current value is not positive.
func (l *Ledger) APY() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.apyLocked()
}

func (l *Ledger) apyLocked() decimal.Decimal {
	if !l.costBasis.IsPositive() || !l.balance.IsPositive() {
		return decimal.Zero
	}
	days := int(l.now().Sub(l.firstTrade).Hours() / 24)
	if days < 1 {
		days = 1
	}
	// The compounding exponent is irrational in general; decimal types buy
	// nothing here, so the ratio is annualized in float64.
	ratio := l.balance.Div(l.costBasis).InexactFloat64()
	apy := (math.Pow(ratio, 365/float64(days)) - 1) * 100
	return decimal.NewFromFloat(apy)
}

// History returns the trade log in append order. A positive limit keeps
// only the most recent entries (tail truncation).
func (l *Ledger) History(limit int) []model.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	log := l.trades
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]model.Trade, len(log))
	copy(out, log)
	return out
}

// Len returns the number of appended trades.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.trades)
}

// Performance returns the wallet's derived metric snapshot.
func (l *Ledger) Performance() model.WalletPerformance {
	l.mu.Lock()
	defer l.mu.Unlock()

	return model.WalletPerformance{
		Name:           l.name,
		CostBasis:      l.costBasis,
		CurrentValue:   l.balance,
		TotalReturn:    l.balance.Sub(l.costBasis),
		TotalReturnPct: returnPct(l.balance, l.costBasis),
		APY:            l.apyLocked(),
		TradeCount:     len(l.trades),
	}
}

func returnPct(value, basis decimal.Decimal) decimal.Decimal {
	if !basis.IsPositive() {
		return decimal.Zero
	}
	return value.Div(basis).Sub(decimal.NewFromInt(1)).Mul(hundred)
}
