package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/driftframe/backend/internal/admin"
	"github.com/driftframe/backend/internal/config"
	"github.com/driftframe/backend/internal/events"
	"github.com/driftframe/backend/internal/execution"
	"github.com/driftframe/backend/internal/identity"
	"github.com/driftframe/backend/internal/jobs"
	"github.com/driftframe/backend/internal/ledger"
	"github.com/driftframe/backend/internal/metrics"
	"github.com/driftframe/backend/internal/provider"
	"github.com/driftframe/backend/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Account store
	var (
		accounts store.AccountStore
		pool     *pgxpool.Pool
	)
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Unable to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			slog.Error("Cannot reach PostgreSQL", "error", err)
			os.Exit(1)
		}
		pg := store.NewPostgresAccountStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("Account store migration failed", "error", err)
			os.Exit(1)
		}
		accounts = pg
		slog.Info("Using PostgreSQL account store")
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("Cannot reach Redis", "error", err)
			os.Exit(1)
		}
		accounts = store.NewRedisAccountStore(rdb)
		slog.Info("Using Redis account store")
	default:
		accounts = store.NewMemoryAccountStore()
		slog.Warn("Using in-memory account store; balances do not survive restarts")
	}

	// Optional ledger event stream
	var publisher events.Publisher
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			slog.Error("Cannot reach NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		publisher = events.NewNATSPublisher(nc, logger)
		slog.Info("Publishing ledger events to NATS")
	}

	m := metrics.New()
	ledgerSvc := ledger.NewService(accounts, publisher, m, logger)
	gateway := provider.NewArkClient(cfg.Provider.Endpoint, cfg.Provider.APIKey, cfg.Provider.Model)
	registry := jobs.NewRegistry()

	// Async path rides the river queue, which needs postgres. The enqueue
	// func is late-bound because the river client needs the orchestrator's
	// worker first.
	var enqueueMu sync.Mutex
	var enqueueFn jobs.EnqueueGenerationFunc
	var enqueue jobs.EnqueueGenerationFunc
	if pool != nil {
		enqueue = func(ctx context.Context, args execution.GenerationJobArgs) error {
			enqueueMu.Lock()
			fn := enqueueFn
			enqueueMu.Unlock()
			if fn == nil {
				return jobs.ErrAsyncDisabled
			}
			return fn(ctx, args)
		}
	}

	orchestrator := jobs.NewOrchestrator(ledgerSvc, gateway, registry, enqueue, m, logger, jobs.Config{
		Price:           cfg.Orchestrator.Price,
		PollInterval:    cfg.Orchestrator.PollInterval,
		MaxPollAttempts: cfg.Orchestrator.MaxPollAttempts,
	})

	if pool != nil {
		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			slog.Error("Failed to create River migrator", "error", err)
			os.Exit(1)
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			slog.Error("River migrate up failed", "error", err)
			os.Exit(1)
		}

		workers := river.NewWorkers()
		river.AddWorker(workers, execution.NewGenerationWorker(orchestrator, logger))

		riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
			Queues: map[string]river.QueueConfig{
				river.QueueDefault: {MaxWorkers: 10},
			},
			Workers: workers,
		})
		if err != nil {
			slog.Error("Failed to create River client", "error", err)
			os.Exit(1)
		}

		enqueueMu.Lock()
		enqueueFn = func(ctx context.Context, args execution.GenerationJobArgs) error {
			_, err := riverClient.Insert(ctx, args, nil)
			return err
		}
		enqueueMu.Unlock()

		riverCtx, stopRiver := context.WithCancel(ctx)
		defer stopRiver()
		go func() {
			if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
				slog.Error("River client stopped", "error", err)
			}
		}()
	}

	ids := identity.NewService(cfg.SessionSecret, cfg.AdminActors, cfg.AdminKeyHash)
	adminSvc := admin.NewService(ids, ledgerSvc)

	mux := http.NewServeMux()
	registerRoutes(mux, orchestrator, ledgerSvc, adminSvc, ids, m, cfg, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
		AllowCredentials: true,
	}).Handler(mux)

	slog.Info("Starting HTTP server", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
