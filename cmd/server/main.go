package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aloonj/reefnotify/internal/api"
	"github.com/aloonj/reefnotify/internal/backoff"
	"github.com/aloonj/reefnotify/internal/config"
	"github.com/aloonj/reefnotify/internal/db"
	"github.com/aloonj/reefnotify/internal/dispatch"
	"github.com/aloonj/reefnotify/internal/metrics"
	"github.com/aloonj/reefnotify/internal/ratelimiter"
	"github.com/aloonj/reefnotify/internal/sender"
	"github.com/aloonj/reefnotify/internal/service"
	"github.com/aloonj/reefnotify/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	st := store.NewPgJobStore(pool)
	snd := sender.NewWebhookSender(cfg.SenderBaseURL, cfg.SenderTimeout)
	limiter := ratelimiter.New(cfg.RateLimit)
	policy := backoff.Policy{Base: cfg.BackoffBase, Cap: cfg.BackoffCap}
	svc := service.NewQueueService(st, logger)

	// ---- dispatch workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	workers := dispatch.NewPool(
		cfg.Workers, st, snd, limiter, policy,
		dispatch.Options{
			Tick:        cfg.Tick,
			BatchSize:   cfg.BatchSize,
			StaleAfter:  cfg.StaleAfter,
			MaxInFlight: cfg.MaxInFlight,
		},
		logger,
		m.DispatchHooks(),
	)
	workers.Start(workerCtx)

	// Queue depth gauges are refreshed on a slow poll; the status query is a
	// single aggregate scan.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if st, err := svc.Status(workerCtx); err == nil {
					m.SetQueueDepth(st)
				}
			}
		}
	}()

	// ---- HTTP server ----
	router := api.NewRouter(svc, m.ObserveEnqueue, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal all dispatch workers to stop claiming new jobs.
	cancelWorkers()

	// 3. Wait for in-flight sends to finish. Anything left in processing
	//    after a hard kill is reclaimed by the staleness sweep on restart.
	workers.Wait()

	logger.Info("server stopped cleanly")
}
