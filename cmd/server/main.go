package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/botfolio/portfolio-engine/internal/api"
	"github.com/botfolio/portfolio-engine/internal/ledger"
	"github.com/botfolio/portfolio-engine/internal/metrics"
	"github.com/botfolio/portfolio-engine/internal/registry"
	"github.com/botfolio/portfolio-engine/internal/source"
	"github.com/botfolio/portfolio-engine/internal/store"
)

func main() {
	_ = godotenv.Load() // Load .env if present

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	ctx := context.Background()

	// --- Portfolio ---
	portfolio := ledger.NewPortfolio(st, nil)
	if err := portfolio.Load(ctx); err != nil {
		slog.Error("failed to load wallets", "err", err)
		os.Exit(1)
	}
	for _, name := range splitList(os.Getenv("WALLETS")) {
		if _, err := portfolio.AddWallet(ctx, name); err != nil {
			slog.Error("failed to create wallet", "wallet", name, "err", err)
			os.Exit(1)
		}
	}

	// --- Bot sources and registry ---
	fetchTimeout := envDuration("BOT_FETCH_TIMEOUT", 30*time.Second)
	src := &source.Router{
		HTTP: source.NewHTTPSource(fetchTimeout),
		Sim:  source.NewSimulator(0),
	}
	workers := envInt("INGEST_WORKERS", registry.DefaultWorkers)
	reg := registry.New(portfolio, src, workers, nil)

	// --- Dashboard hub ---
	hub := api.NewHub()
	go hub.Run()

	// --- HTTP service ---
	svc := api.NewService(portfolio, reg, hub)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"portfolio-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// --- Background ingestion sweep ---
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if interval := envDuration("INGEST_INTERVAL", 0); interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-sweepCtx.Done():
					return
				case <-ticker.C:
					results := reg.IngestAll(sweepCtx)
					ok := 0
					for _, success := range results {
						if success {
							ok++
						}
					}
					slog.Info("ingestion sweep complete", "bots", len(results), "ok", ok)
					summary := portfolio.Summarize()
					hub.Broadcast(api.Message{Type: "portfolio_updated", Summary: &summary})
				}
			}
		}()
		slog.Info("background ingestion enabled", "interval", interval.String())
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("portfolio-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down portfolio-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("portfolio-engine stopped")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", v)
		return fallback
	}
	return n
}
