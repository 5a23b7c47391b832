// Package registry maps external trade sources ("bots") to wallets, drives
// ingestion sweeps through the validator into the ledgers, and tracks
// per-bot health. Registration is permanent: a failing bot flips to error
// status but stays registered and is retried on the next sweep.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/botfolio/portfolio-engine/internal/ledger"
	"github.com/botfolio/portfolio-engine/internal/metrics"
	"github.com/botfolio/portfolio-engine/internal/model"
	"github.com/botfolio/portfolio-engine/internal/source"
	"github.com/botfolio/portfolio-engine/internal/validate"
)

// ErrBotNotRegistered is returned when ingesting for an unknown bot ID.
var ErrBotNotRegistered = errors.New("registry: bot not registered")

// DefaultWorkers bounds how many bots IngestAll processes concurrently.
const DefaultWorkers = 4

// Registry tracks registered bots and their wallet bindings.
type Registry struct {
	portfolio *ledger.Portfolio
	source    source.Source
	workers   int
	now       func() time.Time

	mu    sync.RWMutex
	order []string
	bots  map[string]*model.Bot
}

// New creates a registry. workers <= 0 uses DefaultWorkers; a nil now
// defaults to time.Now in UTC.
func New(p *ledger.Portfolio, src source.Source, workers int, now func() time.Time) *Registry {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		portfolio: p,
		source:    src,
		workers:   workers,
		now:       now,
		bots:      make(map[string]*model.Bot),
	}
}

// Register binds a bot to a wallet, creating the wallet ledger if absent.
// Registering the same bot twice is a no-op on the ledger; endpoint and
// key metadata are last-write-wins.
func (r *Registry) Register(ctx context.Context, id, wallet, endpoint, apiKey string) error {
	if _, err := r.portfolio.AddWallet(ctx, wallet); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bots[id]; ok {
		b.Wallet = wallet
		b.Endpoint = endpoint
		b.APIKey = apiKey
		return nil
	}
	r.bots[id] = &model.Bot{
		ID:       id,
		Wallet:   wallet,
		Endpoint: endpoint,
		APIKey:   apiKey,
		Status:   model.BotRegistered,
	}
	r.order = append(r.order, id)
	slog.Info("bot registered", "bot", id, "wallet", wallet)
	return nil
}

// IngestCycle runs one sweep for a bot: fetch a batch from its source,
// validate each payload, and append the valid ones to the bot's wallet.
// It reports how many records were accepted and rejected.
//
// Only a fetch failure flips the bot to error status (and returns the
// error); a cycle that accepts zero trades still counts as active as long
// as the fetch itself succeeded. Per-record rejections — validation
// failures, the quantity invariant, store errors on individual appends —
// are counted and never abort the rest of the batch.
func (r *Registry) IngestCycle(ctx context.Context, id string) (accepted, rejected int, err error) {
	r.mu.RLock()
	b, ok := r.bots[id]
	if !ok {
		r.mu.RUnlock()
		return 0, 0, fmt.Errorf("%w: %s", ErrBotNotRegistered, id)
	}
	bot := *b
	r.mu.RUnlock()

	start := r.now()
	defer func() {
		metrics.IngestDuration.WithLabelValues(id).Observe(time.Since(start).Seconds())
	}()

	wallet, err := r.portfolio.Wallet(bot.Wallet)
	if err != nil {
		r.setStatus(id, model.BotError, err)
		return 0, 0, err
	}

	raws, err := r.source.FetchTrades(ctx, bot)
	if err != nil {
		r.setStatus(id, model.BotError, err)
		metrics.IngestCycles.WithLabelValues(id, "error").Inc()
		slog.Error("bot fetch failed", "bot", id, "err", err)
		return 0, 0, fmt.Errorf("ingest %s: %w", id, err)
	}

	for _, raw := range raws {
		t, err := validate.Trade(raw)
		if err != nil {
			rejected++
			metrics.TradesRejected.WithLabelValues(RejectReason(err)).Inc()
			slog.Warn("trade rejected", "bot", id, "err", err)
			continue
		}
		if _, err := wallet.Append(ctx, t); err != nil {
			rejected++
			metrics.TradesRejected.WithLabelValues(RejectReason(err)).Inc()
			slog.Warn("trade append failed", "bot", id, "wallet", bot.Wallet, "err", err)
			continue
		}
		accepted++
	}

	r.setStatus(id, model.BotActive, nil)
	metrics.IngestCycles.WithLabelValues(id, "ok").Inc()
	slog.Info("ingest cycle complete",
		"bot", id,
		"wallet", bot.Wallet,
		"accepted", accepted,
		"rejected", rejected,
	)
	return accepted, rejected, nil
}

// IngestAll sweeps every registered bot with a bounded worker pool and
// reports per-bot success. One bot's failure never aborts the others:
// worker funcs swallow their errors into the result map. Bots mapping to
// the same wallet still serialize through that wallet's ledger lock.
func (r *Registry) IngestAll(ctx context.Context) map[string]bool {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	results := make(map[string]bool, len(ids))
	var resMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, _, err := r.IngestCycle(ctx, id)
			resMu.Lock()
			results[id] = err == nil
			resMu.Unlock()
			return nil
		})
	}
	g.Wait()

	return results
}

// Bots returns a status snapshot of all registered bots, in registration
// order.
func (r *Registry) Bots() []model.Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Bot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.bots[id])
	}
	return out
}

func (r *Registry) setStatus(id, status string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[id]
	if !ok {
		return
	}
	b.Status = status
	now := r.now()
	b.LastUpdate = &now
	if cause != nil {
		b.LastError = cause.Error()
	} else {
		b.LastError = ""
	}
}

// RejectReason maps a validation or append error to its metrics label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, validate.ErrMissingField):
		return "missing_field"
	case errors.Is(err, validate.ErrInvalidType):
		return "invalid_type"
	case errors.Is(err, validate.ErrInvalidAction):
		return "invalid_action"
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return "invalid_quantity"
	default:
		return "store"
	}
}
