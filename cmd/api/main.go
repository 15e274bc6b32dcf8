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
	balanceClient "moneyflow/internal/adapter/balance"
	httpHandler "moneyflow/internal/adapter/http/handler"
	"moneyflow/internal/adapter/notification"
	pgStorage "moneyflow/internal/adapter/storage/postgres"
	redisStorage "moneyflow/internal/adapter/storage/redis"
	"moneyflow/internal/core/ports"
	"moneyflow/internal/service"
	"moneyflow/pkg/logger"
	"moneyflow/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("MF_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("moneyflow-api", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting moneyflow API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, "moneyflow-api", log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize repositories
	outboxRepo := pgStorage.NewOutboxRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	cashRepo := pgStorage.NewCashOperationRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	sigSvc := service.NewHMACSignatureService(0)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	sink, err := notification.New(cfg.Notification, sigSvc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize notification sink")
	}
	defer sink.Close()

	mutator := balanceClient.NewClient(cfg.Balance.BaseURL, &http.Client{Timeout: cfg.Balance.Timeout}, log)

	// Initialize business services
	transferSvc := service.NewTransferService(mutator, ledgerRepo, outboxRepo, transactor, idempotencyCache, m, log)
	cashSvc := service.NewCashService(mutator, cashRepo, outboxRepo, transactor, idempotencyCache, m, log)

	publisher := service.NewOutboxPublisher(outboxRepo, transactor, sink, service.PublisherConfig{
		Interval:    cfg.Outbox.PublisherInterval,
		BatchSize:   cfg.Outbox.BatchSize,
		Concurrency: cfg.Outbox.Concurrency,
	}, m, log)
	janitor := service.NewOutboxJanitor(outboxRepo, service.JanitorConfig{
		Interval:  cfg.Outbox.JanitorInterval,
		Retention: cfg.Outbox.Retention,
	}, m, log)

	publisher.Start(ctx)
	janitor.Start(ctx)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		TransferSvc:    transferSvc,
		CashSvc:        cashSvc,
		OutboxMonitor:  publisher,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgStorage.NewHealthCheck(pool, pgStorage.CoreTables...), redisStorage.NewHealthCheck(rdb)},
		Metrics:        m,
		Gatherer:       registry,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
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
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	publisher.Stop()
	janitor.Stop()

	log.Info().Msg("Server exited")
}
