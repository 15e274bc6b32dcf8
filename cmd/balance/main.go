package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moneyflow/config"
	httpHandler "moneyflow/internal/adapter/http/handler"
	pgStorage "moneyflow/internal/adapter/storage/postgres"
	"moneyflow/internal/core/ports"
	"moneyflow/internal/service"
	"moneyflow/pkg/logger"
	"moneyflow/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load(os.Getenv("MF_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("moneyflow-balance", cfg.Log.Level, cfg.Log.Pretty)
	log.Info().Int("port", cfg.Balance.Port).Msg("Starting balance service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, "moneyflow-balance", log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	balanceSvc := service.NewBalanceService(pgStorage.NewAccountRepo(pool), cfg.Balance.CASAttempts, m, log)

	router := httpHandler.SetupBalanceRouter(httpHandler.BalanceRouterDeps{
		BalanceSvc:     balanceSvc,
		HealthCheckers: []ports.HealthChecker{pgStorage.NewHealthCheck(pool, pgStorage.BalanceTables...)},
		Metrics:        m,
		Gatherer:       registry,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Balance.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down balance service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}
