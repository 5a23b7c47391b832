// Package source provides the bot-side collaborators the registry ingests
// from: a live HTTP fetcher for bots that expose a trades endpoint and a
// synthetic generator for bots that don't. The engine only requires a
// terminating call that returns a finite batch or fails.
package source

import (
	"context"

	"github.com/botfolio/portfolio-engine/internal/model"
	"github.com/botfolio/portfolio-engine/internal/validate"
)

// Source produces a batch of candidate trade payloads for one bot.
// Implementations must respect ctx cancellation; any blocking belongs
// here, bounded by the caller's deadline.
type Source interface {
	FetchTrades(ctx context.Context, bot model.Bot) ([]validate.RawTrade, error)
}

// Router dispatches per bot: bots with an endpoint fetch live, bots
// without one fall back to the simulator.
type Router struct {
	HTTP Source
	Sim  Source
}

func (r *Router) FetchTrades(ctx context.Context, bot model.Bot) ([]validate.RawTrade, error) {
	if bot.Endpoint == "" {
		return r.Sim.FetchTrades(ctx, bot)
	}
	return r.HTTP.FetchTrades(ctx, bot)
}
