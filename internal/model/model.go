// Package model defines the core domain types shared across the portfolio
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade actions. Anything else is rejected before it reaches a ledger.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Trade is an immutable record of one executed trade in a wallet's
// append-only log. Once appended it is never modified or deleted.
// RunningBalance is derived by the ledger, not supplied by callers.
type Trade struct {
	ID             string          `json:"id" db:"id"`
	Wallet         string          `json:"wallet" db:"wallet"`
	Timestamp      time.Time       `json:"timestamp" db:"ts"`
	Action         string          `json:"action" db:"action"` // "BUY" or "SELL"
	Asset          string          `json:"asset" db:"asset"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	Price          decimal.Decimal `json:"price" db:"price"`             // unit price
	TotalValue     decimal.Decimal `json:"total_value" db:"total_value"` // quantity * price unless supplied
	RunningBalance decimal.Decimal `json:"running_balance"`
	Notes          string          `json:"notes,omitempty" db:"notes"`
}

// Signed returns the trade's contribution to the running balance:
// +TotalValue for BUY, -TotalValue for SELL.
func (t Trade) Signed() decimal.Decimal {
	if t.Action == ActionSell {
		return t.TotalValue.Neg()
	}
	return t.TotalValue
}

// WalletPerformance is the derived metric snapshot for one wallet.
type WalletPerformance struct {
	Name           string          `json:"name"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	TotalReturn    decimal.Decimal `json:"total_return"`
	TotalReturnPct decimal.Decimal `json:"total_return_pct"`
	APY            decimal.Decimal `json:"apy"`
	TradeCount     int             `json:"trade_count"`
}

// PortfolioSummary aggregates all wallets. Recomputed on demand, never
// persisted independently. Wallets preserves registration order.
type PortfolioSummary struct {
	Timestamp      time.Time           `json:"timestamp"`
	TotalValue     decimal.Decimal     `json:"total_value"`
	TotalInvested  decimal.Decimal     `json:"total_invested"`
	TotalReturn    decimal.Decimal     `json:"total_return"`
	TotalReturnPct decimal.Decimal     `json:"total_return_pct"`
	WalletCount    int                 `json:"wallet_count"`
	Wallets        []WalletPerformance `json:"wallets"`
}

// Bot lifecycle states. A bot never leaves registration; fetch failures
// flip it to BotError and the next successful cycle flips it back to
// BotActive.
const (
	BotRegistered = "registered"
	BotActive     = "active"
	BotError      = "error"
)

// Bot maps an external trade source to a wallet. Pure ingestion
// bookkeeping — it references the wallet by name and never holds
// ledger data.
type Bot struct {
	ID         string     `json:"id"`
	Wallet     string     `json:"wallet"`
	Endpoint   string     `json:"endpoint,omitempty"`
	APIKey     string     `json:"-"`
	Status     string     `json:"status"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}
