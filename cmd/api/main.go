package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/consultly/dialog-engine/internal/api/router"
	"github.com/consultly/dialog-engine/internal/booking"
	appconfig "github.com/consultly/dialog-engine/internal/config"
	"github.com/consultly/dialog-engine/internal/dialog"
	"github.com/consultly/dialog-engine/internal/directory"
	"github.com/consultly/dialog-engine/internal/http/handlers"
	"github.com/consultly/dialog-engine/internal/intent"
	"github.com/consultly/dialog-engine/internal/llm"
	"github.com/consultly/dialog-engine/internal/memory"
	"github.com/consultly/dialog-engine/internal/observability/metrics"
	"github.com/consultly/dialog-engine/internal/schedule"
	"github.com/consultly/dialog-engine/internal/session"
	"github.com/consultly/dialog-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("starting dialog-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to reach database", "error", err)
		os.Exit(1)
	}

	providerDir := directory.NewRepository(pool)
	reservations := schedule.NewRepository(pool)

	var memStore memory.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to reach redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = rdb.Close() }()
		memStore = memory.NewRedisStore(rdb, cfg.TranscriptTTL, nil)
	} else {
		logger.Warn("REDIS_ADDR not set, conversation memory is in-process only")
		memStore = memory.NewInMemoryStore()
	}
	mem := memory.New(memStore, logger)

	sessions := session.NewStore(logger, session.WithTTL(cfg.SessionTTL))
	sessions.StartSweeper(cfg.SessionSweepEvery)
	defer sessions.Close()

	engine := schedule.NewEngine(reservations,
		schedule.WithHorizon(cfg.AvailabilityDays),
		schedule.WithMaxDates(cfg.MaxBookableDates),
	)
	dialogMetrics := metrics.NewDialogMetrics(nil)
	decider := booking.NewFixedRateDecider(cfg.PaymentSuccessRate, time.Now().UnixNano())
	flow := booking.NewFlow(engine, reservations, decider, logger, booking.WithMetrics(dialogMetrics))

	var completer llm.Completer = llm.NewTemplateCompleter()
	if cfg.OpenAIAPIKey != "" {
		completer = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAITimeout, logger)
		logger.Info("completion service enabled", "model", cfg.OpenAIModel)
	} else {
		logger.Info("no completion service configured, using template replies")
	}

	svc := dialog.NewService(sessions, intent.NewClassifier(), providerDir, flow, mem,
		completer, dialogMetrics, logger,
		dialog.WithRecentTurns(cfg.RecentTurns),
	)

	r := router.New(&router.Config{
		Logger:             logger,
		DialogHandler:      handlers.NewDialogHandler(svc, logger),
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
