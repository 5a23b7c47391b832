// Package api provides the HTTP surface of the portfolio engine: wallet
// and trade endpoints, portfolio summaries, bot registration, ingestion
// triggers, and the dashboard WebSocket feed.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/botfolio/portfolio-engine/internal/ledger"
	"github.com/botfolio/portfolio-engine/internal/metrics"
	"github.com/botfolio/portfolio-engine/internal/model"
	"github.com/botfolio/portfolio-engine/internal/registry"
	"github.com/botfolio/portfolio-engine/internal/validate"
)

// Service handles HTTP requests against the portfolio and registry.
// Pass nil for hub if dashboard broadcasting is not needed.
type Service struct {
	portfolio *ledger.Portfolio
	registry  *registry.Registry
	hub       *Hub
}

// NewService creates the HTTP service.
func NewService(p *ledger.Portfolio, r *registry.Registry, hub *Hub) *Service {
	return &Service{portfolio: p, registry: r, hub: hub}
}

// Routes mounts all handlers on a chi router.
func (s *Service) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Get("/portfolio", s.GetPortfolio)

	r.Get("/wallets", s.ListWallets)
	r.Post("/wallets", s.CreateWallet)
	r.Get("/wallets/{wallet}/trades", s.GetTradeHistory)
	r.Post("/wallets/{wallet}/trades", s.AddTrade)
	r.Get("/wallets/{wallet}/performance", s.GetPerformance)

	r.Get("/bots", s.ListBots)
	r.Post("/bots", s.RegisterBot)
	r.Post("/bots/{botID}/ingest", s.IngestBot)
	r.Post("/ingest", s.IngestAll)
}

// --- Request types ---

// CreateWalletRequest is the JSON body for POST /wallets.
type CreateWalletRequest struct {
	Name string `json:"name"`
}

// RegisterBotRequest is the JSON body for POST /bots.
type RegisterBotRequest struct {
	ID       string `json:"id"`
	Wallet   string `json:"wallet"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
}

// IngestResult reports one ingestion cycle's accepted/rejected counts.
type IngestResult struct {
	Bot      string `json:"bot"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
}

// --- Handlers ---

// GetPortfolio handles GET /api/v1/portfolio
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.portfolio.Summarize())
}

// ListWallets handles GET /api/v1/wallets
func (s *Service) ListWallets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.portfolio.WalletNames())
}

// CreateWallet handles POST /api/v1/wallets
func (s *Service) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req CreateWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	if _, err := s.portfolio.AddWallet(r.Context(), req.Name); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("wallet created", "wallet", req.Name)
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

// AddTrade handles POST /api/v1/wallets/{wallet}/trades
// The body is a raw trade payload; it is validated and appended to the
// wallet's ledger. Validation failures are 400s and never touch the log.
func (s *Service) AddTrade(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "wallet")

	wallet, err := s.portfolio.Wallet(name)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	var raw validate.RawTrade
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t, err := validate.Trade(raw)
	if err != nil {
		metrics.TradesRejected.WithLabelValues(registry.RejectReason(err)).Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	stored, err := wallet.Append(r.Context(), t)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidQuantity) {
			metrics.TradesRejected.WithLabelValues(registry.RejectReason(err)).Inc()
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("trade appended",
		"wallet", name,
		"action", stored.Action,
		"asset", stored.Asset,
		"total_value", stored.TotalValue.String(),
	)
	s.broadcastTrade(stored)
	writeJSON(w, http.StatusCreated, stored)
}

// GetTradeHistory handles GET /api/v1/wallets/{wallet}/trades?limit=N
// Returns trades in append order; limit keeps only the most recent N.
func (s *Service) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "wallet")

	wallet, err := s.portfolio.Wallet(name)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}

	trades := wallet.History(limit)
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetPerformance handles GET /api/v1/wallets/{wallet}/performance
func (s *Service) GetPerformance(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "wallet")

	wallet, err := s.portfolio.Wallet(name)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, wallet.Performance())
}

// ListBots handles GET /api/v1/bots
func (s *Service) ListBots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Bots())
}

// RegisterBot handles POST /api/v1/bots
func (s *Service) RegisterBot(w http.ResponseWriter, r *http.Request) {
	var req RegisterBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Wallet == "" {
		writeError(w, "id and wallet are required", http.StatusBadRequest)
		return
	}

	if err := s.registry.Register(r.Context(), req.ID, req.Wallet, req.Endpoint, req.APIKey); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID, "wallet": req.Wallet})
}

// IngestBot handles POST /api/v1/bots/{botID}/ingest
// Runs one ingestion cycle for the bot. A fetch failure is reported as
// 502 — the bot stays registered and flips to error status.
func (s *Service) IngestBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "botID")

	accepted, rejected, err := s.registry.IngestCycle(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrBotNotRegistered) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.broadcastSummary()
	writeJSON(w, http.StatusOK, IngestResult{Bot: id, Accepted: accepted, Rejected: rejected})
}

// IngestAll handles POST /api/v1/ingest
// Sweeps every registered bot; per-bot success is reported and one bot's
// failure never aborts the rest.
func (s *Service) IngestAll(w http.ResponseWriter, r *http.Request) {
	results := s.registry.IngestAll(r.Context())
	s.broadcastSummary()
	writeJSON(w, http.StatusOK, results)
}

// --- Helpers ---

func (s *Service) broadcastTrade(t model.Trade) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(Message{Type: "trade_appended", Wallet: t.Wallet, Trade: &t})
}

func (s *Service) broadcastSummary() {
	if s.hub == nil {
		return
	}
	summary := s.portfolio.Summarize()
	s.hub.Broadcast(Message{Type: "portfolio_updated", Summary: &summary})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
