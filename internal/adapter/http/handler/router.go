package handler

import (
	"moneyflow/internal/adapter/http/middleware"
	redisStore "moneyflow/internal/adapter/storage/redis"
	"moneyflow/internal/core/ports"
	"moneyflow/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up the core API routes.
type RouterDeps struct {
	TransferSvc    ports.TransferService
	CashSvc        ports.CashService
	OutboxMonitor  ports.OutboxMonitor
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer // nil = /metrics disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := newEngine(deps.Logger, deps.Metrics)

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	v1 := r.Group("/api/v1", jwtAuth)

	transferHandler := NewTransferHandler(deps.TransferSvc)
	v1.POST("/transfers", rl("transfers"), transferHandler.Create)

	cashHandler := NewCashHandler(deps.CashSvc)
	v1.POST("/cash", rl("cash"), cashHandler.Create)

	outboxHandler := NewOutboxHandler(deps.OutboxMonitor)
	v1.GET("/outbox/stats", rl("ops"), outboxHandler.Stats)

	return r
}

// BalanceRouterDeps holds the dependencies of the balance service API.
type BalanceRouterDeps struct {
	BalanceSvc     ports.BalanceService
	HealthCheckers []ports.HealthChecker
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Logger         zerolog.Logger
}

// SetupBalanceRouter initialises the balance service routes. It is an
// internal service and carries no caller authentication.
func SetupBalanceRouter(deps BalanceRouterDeps) *gin.Engine {
	r := newEngine(deps.Logger, deps.Metrics)

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	h := NewBalanceHandler(deps.BalanceSvc)
	v1 := r.Group("/api/v1")
	{
		v1.POST("/balances/mutate", h.Mutate)
		v1.POST("/accounts", h.OpenAccount)
		v1.GET("/accounts/:key", h.GetAccount)
	}
	return r
}

func newEngine(log zerolog.Logger, m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit
	return r
}
