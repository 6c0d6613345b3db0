// Package main is the entry point for the payment gateway API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/remip/satgate/internal/api"
	"github.com/remip/satgate/internal/btcpay"
	"github.com/remip/satgate/internal/config"
	"github.com/remip/satgate/internal/db"
	"github.com/remip/satgate/internal/health"
	"github.com/remip/satgate/internal/middleware"
	"github.com/remip/satgate/internal/payment"
	"github.com/remip/satgate/internal/tracing"
)

const serviceName = "satgate"

func main() {
	configFile := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Satgate payment gateway API server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Metrics registry shared by the business and HTTP collectors.
	registry := prometheus.NewRegistry()
	paymentMetrics := payment.NewMetrics()
	if err := paymentMetrics.Register(registry); err != nil {
		logger.Error("failed to register payment metrics", "error", err)
		os.Exit(1)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		repo      payment.PaymentRepository
		dbChecker api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		repo = payment.NewPostgresPaymentRepository(conn, logger)
		dbChecker = health.NewDBChecker(conn)
		logger.Info("using postgres payment store")
	} else {
		repo = payment.NewInMemoryPaymentRepository()
		logger.Warn("DATABASE_URL not set, using in-memory payment store")
	}

	gateway := btcpay.NewHTTPClient(cfg.BTCPayURL, cfg.BTCPayStoreID, cfg.BTCPayAPIKey, cfg.BTCPayTimeout(), logger)

	rules := payment.Rules{LockTerminal: !cfg.WebhookAllowTerminalOverwrite}

	// Rate limit state: Redis when configured, per-instance memory otherwise.
	var (
		rateLimitStore middleware.RateLimitStore
		redisChecker   api.HealthChecker
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient).
			WithLogger(logger).
			WithMetrics(httpMetrics)
		redisChecker = health.NewRedisChecker(redisClient)
		logger.Info("using redis rate limit store", "addr", cfg.RedisAddr)
	} else {
		store := middleware.NewInMemoryRateLimitStore()
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				store.Cleanup()
			}
		}()
		rateLimitStore = store
	}

	rateLimit := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitRequestsPerMinute,
		WindowDuration:    time.Minute,
	}

	mux := api.NewRouter(api.RouterConfig{
		Payments:        api.NewPaymentHandlers(repo, gateway, paymentMetrics, logger),
		Webhooks:        api.NewWebhookHandlers(repo, cfg.BTCPayWebhookSecret, rules, paymentMetrics, logger),
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:    dbChecker,
			RedisChecker: redisChecker,
			Logger:       logger,
		}),
		MetricsRegistry: registry,
		CreateLimiter: middleware.RateLimiter(rateLimitStore, middleware.DefaultCreateLimit(),
			middleware.ScopedKeyFunc("create", middleware.IPKeyFunc()), httpMetrics),
		WebhookLimiter: middleware.RateLimiter(rateLimitStore, middleware.DefaultWebhookLimit(),
			middleware.ScopedKeyFunc("webhook", middleware.IPKeyFunc()), httpMetrics),
	})

	// Middleware chain, outermost first:
	// RequestID -> Tracing -> HTTPMetrics -> RateLimiter -> Logging.
	var handler http.Handler = mux
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RateLimiter(rateLimitStore, rateLimit, middleware.IPKeyFunc(), httpMetrics)(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
