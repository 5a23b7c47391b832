package registry_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/botfolio/portfolio-engine/internal/ledger"
	"github.com/botfolio/portfolio-engine/internal/model"
	"github.com/botfolio/portfolio-engine/internal/registry"
	"github.com/botfolio/portfolio-engine/internal/store"
	"github.com/botfolio/portfolio-engine/internal/validate"
)

// stubSource serves canned batches (or failures) per bot ID.
type stubSource struct {
	batches map[string][]validate.RawTrade
	fail    map[string]bool
}

func (s *stubSource) FetchTrades(_ context.Context, bot model.Bot) ([]validate.RawTrade, error) {
	if s.fail[bot.ID] {
		return nil, errors.New("connection refused")
	}
	return s.batches[bot.ID], nil
}

func rawBuy(asset string, quantity, price string) validate.RawTrade {
	return validate.RawTrade{
		Date:     "2024-06-15",
		Action:   "BUY",
		Asset:    asset,
		Quantity: json.Number(quantity),
		Price:    json.Number(price),
	}
}

func newTestRegistry(t *testing.T, src *stubSource) (*registry.Registry, *ledger.Portfolio) {
	t.Helper()
	p := ledger.NewPortfolio(store.NewMemoryStore(), nil)
	return registry.New(p, src, 2, func() time.Time {
		return time.Date(2024, 6, 16, 12, 0, 0, 0, time.UTC)
	}), p
}

func TestRegisterCreatesWallet(t *testing.T) {
	reg, p := newTestRegistry(t, &stubSource{})
	ctx := context.Background()

	if err := reg.Register(ctx, "bot1", "Wallet_Arbitrage", "", ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := p.Wallet("Wallet_Arbitrage"); err != nil {
		t.Errorf("expected wallet to exist: %v", err)
	}

	bots := reg.Bots()
	if len(bots) != 1 {
		t.Fatalf("expected 1 bot, got %d", len(bots))
	}
	if bots[0].Status != model.BotRegistered {
		t.Errorf("expected status registered, got %s", bots[0].Status)
	}
}

func TestRegisterTwiceLastWriteWins(t *testing.T) {
	reg, p := newTestRegistry(t, &stubSource{})
	ctx := context.Background()

	reg.Register(ctx, "bot1", "Wallet_A", "http://old", "key-old")
	reg.Register(ctx, "bot1", "Wallet_A", "http://new", "key-new")

	bots := reg.Bots()
	if len(bots) != 1 {
		t.Fatalf("expected 1 bot after re-registration, got %d", len(bots))
	}
	if bots[0].Endpoint != "http://new" {
		t.Errorf("expected endpoint metadata to be last-write-wins, got %s", bots[0].Endpoint)
	}

	// Re-registration is a no-op on the ledger.
	w, _ := p.Wallet("Wallet_A")
	if w.Len() != 0 {
		t.Errorf("expected untouched ledger, got %d trades", w.Len())
	}
}

func TestIngestCycle(t *testing.T) {
	src := &stubSource{batches: map[string][]validate.RawTrade{
		"bot1": {
			rawBuy("BTC", "0.5", "67000"),
			{Action: "HOLD", Asset: "BTC", Quantity: "1", Price: "100"}, // invalid action
			{Action: "BUY", Asset: "ETH", Quantity: "0", Price: "3500"}, // quantity invariant
			rawBuy("ETH", "5", "3500"),
		},
	}}
	reg, p := newTestRegistry(t, src)
	ctx := context.Background()

	reg.Register(ctx, "bot1", "Wallet_DCA", "", "")
	accepted, rejected, err := reg.IngestCycle(ctx, "bot1")
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if accepted != 2 || rejected != 2 {
		t.Errorf("expected 2 accepted / 2 rejected, got %d / %d", accepted, rejected)
	}

	w, _ := p.Wallet("Wallet_DCA")
	if w.Len() != 2 {
		t.Errorf("expected 2 trades in ledger, got %d", w.Len())
	}

	bots := reg.Bots()
	if bots[0].Status != model.BotActive {
		t.Errorf("expected status active, got %s", bots[0].Status)
	}
	if bots[0].LastUpdate == nil {
		t.Error("expected LastUpdate to be set")
	}
}

// A cycle that accepts nothing still counts as active when the fetch
// itself succeeded.
func TestIngestCycle_EmptyBatchIsActive(t *testing.T) {
	reg, _ := newTestRegistry(t, &stubSource{})
	ctx := context.Background()

	reg.Register(ctx, "bot1", "Wallet_A", "", "")
	accepted, rejected, err := reg.IngestCycle(ctx, "bot1")
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if accepted != 0 || rejected != 0 {
		t.Errorf("expected 0/0, got %d/%d", accepted, rejected)
	}
	if reg.Bots()[0].Status != model.BotActive {
		t.Errorf("expected status active, got %s", reg.Bots()[0].Status)
	}
}

func TestIngestCycle_FetchFailure(t *testing.T) {
	src := &stubSource{fail: map[string]bool{"bot1": true}}
	reg, _ := newTestRegistry(t, src)
	ctx := context.Background()

	reg.Register(ctx, "bot1", "Wallet_A", "", "")
	if _, _, err := reg.IngestCycle(ctx, "bot1"); err == nil {
		t.Fatal("expected fetch failure")
	}

	bots := reg.Bots()
	if bots[0].Status != model.BotError {
		t.Errorf("expected status error, got %s", bots[0].Status)
	}
	if bots[0].LastError == "" {
		t.Error("expected LastError to be recorded")
	}

	// The bot stays registered and recovers on the next successful cycle.
	src.fail["bot1"] = false
	if _, _, err := reg.IngestCycle(ctx, "bot1"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if reg.Bots()[0].Status != model.BotActive {
		t.Errorf("expected status active after recovery, got %s", reg.Bots()[0].Status)
	}
}

func TestIngestCycle_UnknownBot(t *testing.T) {
	reg, _ := newTestRegistry(t, &stubSource{})

	_, _, err := reg.IngestCycle(context.Background(), "ghost")
	if !errors.Is(err, registry.ErrBotNotRegistered) {
		t.Errorf("expected ErrBotNotRegistered, got %v", err)
	}
}

// Three bots, the second one's source fails: the sweep reports bot1 and
// bot3 as successful and never aborts on bot2's failure.
func TestIngestAll_FailureIsolation(t *testing.T) {
	src := &stubSource{
		batches: map[string][]validate.RawTrade{
			"bot1": {rawBuy("BTC", "1", "67000")},
			"bot3": {rawBuy("SOL", "100", "150")},
		},
		fail: map[string]bool{"bot2": true},
	}
	reg, _ := newTestRegistry(t, src)
	ctx := context.Background()

	reg.Register(ctx, "bot1", "Wallet_1", "", "")
	reg.Register(ctx, "bot2", "Wallet_2", "", "")
	reg.Register(ctx, "bot3", "Wallet_3", "", "")

	results := reg.IngestAll(ctx)

	want := map[string]bool{"bot1": true, "bot2": false, "bot3": true}
	for id, ok := range want {
		if results[id] != ok {
			t.Errorf("bot %s: expected %v, got %v", id, ok, results[id])
		}
	}

	statuses := map[string]string{}
	for _, b := range reg.Bots() {
		statuses[b.ID] = b.Status
	}
	if statuses["bot1"] != model.BotActive || statuses["bot3"] != model.BotActive {
		t.Errorf("expected bots 1 and 3 active, got %v", statuses)
	}
	if statuses["bot2"] != model.BotError {
		t.Errorf("expected bot2 error, got %s", statuses["bot2"])
	}
}

// Two bots feeding the same wallet serialize through its ledger lock:
// every accepted trade lands.
func TestIngestAll_SharedWallet(t *testing.T) {
	src := &stubSource{batches: map[string][]validate.RawTrade{
		"bot1": {rawBuy("BTC", "1", "100"), rawBuy("BTC", "1", "200")},
		"bot2": {rawBuy("ETH", "1", "300"), rawBuy("ETH", "1", "400")},
	}}
	reg, p := newTestRegistry(t, src)
	ctx := context.Background()

	reg.Register(ctx, "bot1", "Wallet_Shared", "", "")
	reg.Register(ctx, "bot2", "Wallet_Shared", "", "")

	results := reg.IngestAll(ctx)
	if !results["bot1"] || !results["bot2"] {
		t.Fatalf("expected both bots to succeed: %v", results)
	}

	w, _ := p.Wallet("Wallet_Shared")
	if w.Len() != 4 {
		t.Errorf("expected 4 trades in shared wallet, got %d", w.Len())
	}
}
