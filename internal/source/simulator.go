package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/botfolio/portfolio-engine/internal/model"
	"github.com/botfolio/portfolio-engine/internal/validate"
)

var simAssets = []string{"BTC", "ETH", "SOL", "MATIC", "LINK", "AVAX", "DOT", "ADA"}

// Simulator generates plausible trade payloads for bots without a live
// endpoint. One payload per fetch, quantities in [0.01, 10) and prices in
// [50, 5000), matching the shapes real bot endpoints produce. Seedable so
// tests are deterministic.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSimulator creates a simulator. Seed 0 seeds from the clock.
func NewSimulator(seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		rng: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Simulator) FetchTrades(_ context.Context, bot model.Bot) ([]validate.RawTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action := model.ActionBuy
	if s.rng.Intn(2) == 1 {
		action = model.ActionSell
	}
	quantity := 0.01 + s.rng.Float64()*9.99
	price := 50 + s.rng.Float64()*4950

	raw := validate.RawTrade{
		Date:     s.now().Format("2006-01-02 15:04:05"),
		Action:   action,
		Asset:    simAssets[s.rng.Intn(len(simAssets))],
		Quantity: json.Number(fmt.Sprintf("%.4f", quantity)),
		Price:    json.Number(fmt.Sprintf("%.2f", price)),
		Notes:    fmt.Sprintf("Simulated trade from %s", bot.ID),
	}
	return []validate.RawTrade{raw}, nil
}
