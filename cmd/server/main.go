package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/workshoplabs/webhook-engine/internal/api"
	"github.com/workshoplabs/webhook-engine/internal/config"
	"github.com/workshoplabs/webhook-engine/internal/domain"
	"github.com/workshoplabs/webhook-engine/internal/engine"
	"github.com/workshoplabs/webhook-engine/internal/store"
	ws "github.com/workshoplabs/webhook-engine/internal/websocket"
	"github.com/workshoplabs/webhook-engine/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis (delivery queue + rate limiter state)
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// Live delivery feed
	hub := ws.NewHub(logger)
	go hub.Run()

	// Delivery engine
	dispatcher := engine.NewDispatcher(pgStore, pgStore, redisStore.Client(), logger)
	scheduler := engine.NewRetryScheduler(engine.Backoff{Base: cfg.RetryBaseDelay, Max: cfg.RetryMaxDelay})
	circuit := engine.NewFailureCircuit(pgStore, cfg.DisableThreshold, logger)
	limiter := engine.NewRateLimiter(redisStore.Client(), logger)
	executor := worker.NewExecutor(pgStore, pgStore, scheduler, circuit, limiter, redisStore.Client(), hub, logger)

	pool := worker.NewPool(cfg.NumWorkers, executor, logger)
	pool.Start(ctx)

	poller := worker.NewPoller(redisStore.Client(), pool, logger)
	go poller.Start(ctx)

	sweeper := engine.NewSweeper(pgStore, redisStore.Client(), cfg.SweepInterval, logger)
	go sweeper.Start(ctx)

	// Domain event bus: the ingestion endpoint and in-process business code
	// publish here. The webhook dispatcher is best-effort and can never fail
	// a publisher; transaction-bound listeners (e.g. inventory) would
	// register as sync_transactional.
	bus := engine.NewBus(logger)
	bus.Subscribe(domain.DispatchAsyncBestEffort, dispatcher.HandleEvent)

	// Setup router
	router := api.NewRouter(pgStore, bus, dispatcher, executor, hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop the poller first and wait for it to exit; only then is it safe
	// to close the pool's jobs channel. Workers drain after that.
	cancel()
	<-poller.Done()
	pool.Stop()

	logger.Info("server stopped")
}
