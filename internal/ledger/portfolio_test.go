package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/botfolio/portfolio-engine/internal/ledger"
	"github.com/botfolio/portfolio-engine/internal/model"
	"github.com/botfolio/portfolio-engine/internal/store"
)

func TestAddWalletIdempotent(t *testing.T) {
	p := ledger.NewPortfolio(store.NewMemoryStore(), nil)
	ctx := context.Background()

	l1, err := p.AddWallet(ctx, "Wallet_DCA")
	if err != nil {
		t.Fatalf("failed to add wallet: %v", err)
	}
	l2, err := p.AddWallet(ctx, "Wallet_DCA")
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if l1 != l2 {
		t.Error("expected the same ledger instance on duplicate registration")
	}
	if names := p.WalletNames(); len(names) != 1 {
		t.Errorf("expected 1 wallet, got %v", names)
	}
}

func TestWalletNotFound(t *testing.T) {
	p := ledger.NewPortfolio(store.NewMemoryStore(), nil)

	if _, err := p.Wallet("nope"); !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	p := ledger.NewPortfolio(store.NewMemoryStore(), nil)
	ctx := context.Background()

	arb, _ := p.AddWallet(ctx, "Wallet_Arbitrage")
	dca, _ := p.AddWallet(ctx, "Wallet_DCA")

	mustAppend(t, arb, trade(model.ActionBuy, 1000))
	mustAppend(t, arb, trade(model.ActionSell, 400))
	mustAppend(t, dca, trade(model.ActionBuy, 500))

	s := p.Summarize()

	if s.WalletCount != 2 {
		t.Fatalf("expected 2 wallets, got %d", s.WalletCount)
	}
	// Registration order, not alphabetical or map order.
	if s.Wallets[0].Name != "Wallet_Arbitrage" || s.Wallets[1].Name != "Wallet_DCA" {
		t.Errorf("wallet order mismatch: %s, %s", s.Wallets[0].Name, s.Wallets[1].Name)
	}

	// totalValue = (1000-400) + 500, totalInvested = 1000 + 500.
	if !s.TotalValue.Equal(d(1100)) {
		t.Errorf("expected total value 1100, got %s", s.TotalValue)
	}
	if !s.TotalInvested.Equal(d(1500)) {
		t.Errorf("expected total invested 1500, got %s", s.TotalInvested)
	}
	if !s.TotalReturn.Equal(d(-400)) {
		t.Errorf("expected total return -400, got %s", s.TotalReturn)
	}
	// (1100/1500 - 1) * 100
	wantPct := d(1100).Div(d(1500)).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
	if !s.TotalReturnPct.Equal(wantPct) {
		t.Errorf("expected return pct %s, got %s", wantPct, s.TotalReturnPct)
	}
}

func TestSummarizeEmptyPortfolio(t *testing.T) {
	p := ledger.NewPortfolio(store.NewMemoryStore(), nil)

	s := p.Summarize()
	if s.WalletCount != 0 {
		t.Errorf("expected 0 wallets, got %d", s.WalletCount)
	}
	if !s.TotalValue.IsZero() || !s.TotalInvested.IsZero() || !s.TotalReturnPct.IsZero() {
		t.Error("expected all totals to be zero for an empty portfolio")
	}
}

// Summaries stay consistent while other wallets take concurrent appends.
func TestSummarizeConcurrentWithAppends(t *testing.T) {
	p := ledger.NewPortfolio(store.NewMemoryStore(), nil)
	ctx := context.Background()

	var ledgers []*ledger.Ledger
	for i := 0; i < 4; i++ {
		l, err := p.AddWallet(ctx, fmt.Sprintf("Wallet_%d", i))
		if err != nil {
			t.Fatalf("failed to add wallet: %v", err)
		}
		ledgers = append(ledgers, l)
	}

	var wg sync.WaitGroup
	for _, l := range ledgers {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := l.Append(ctx, trade(model.ActionBuy, 10)); err != nil {
					t.Errorf("append failed: %v", err)
					return
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s := p.Summarize()
			// Every observed total must be a multiple of 10: partial
			// trades are never visible.
			if !s.TotalValue.Mod(d(10)).IsZero() {
				t.Errorf("torn summary: total value %s", s.TotalValue)
				return
			}
		}
	}()

	wg.Wait()
	<-done

	s := p.Summarize()
	if !s.TotalValue.Equal(d(2000)) {
		t.Errorf("expected final total value 2000, got %s", s.TotalValue)
	}
}

func TestLoadReopensWallets(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	p1 := ledger.NewPortfolio(st, nil)
	w, err := p1.AddWallet(ctx, "Wallet_Grid")
	if err != nil {
		t.Fatalf("failed to add wallet: %v", err)
	}
	mustAppend(t, w, trade(model.ActionBuy, 250))

	p2 := ledger.NewPortfolio(st, nil)
	if err := p2.Load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	s := p2.Summarize()
	if s.WalletCount != 1 {
		t.Fatalf("expected 1 wallet after load, got %d", s.WalletCount)
	}
	if !s.TotalValue.Equal(d(250)) {
		t.Errorf("expected total value 250 after load, got %s", s.TotalValue)
	}
}
