package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"softspace/internal/api"
	"softspace/internal/billing"
	"softspace/internal/config"
	"softspace/internal/llm"
	"softspace/internal/prompts"
	"softspace/internal/store"
	"softspace/internal/store/memory"
	"softspace/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("starting softspace backend")

	// 1. Load Configuration
	cfg, err := config.LoadConfig(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// 2. Initialize the store
	var st store.Store
	if cfg.UsesMemoryStore() {
		logger.Warn("using in-memory store; data is lost on exit")
		st = memory.New()
	} else {
		dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dbCancel()

		dbpool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("unable to create database connection pool", zap.Error(err))
		}
		defer dbpool.Close()

		if err := dbpool.Ping(dbCtx); err != nil {
			logger.Fatal("unable to ping database", zap.Error(err))
		}
		pgStore := postgres.NewPostgresStore(dbpool, logger)
		if cfg.MigrateOnStart {
			if err := pgStore.Migrate(dbCtx); err != nil {
				logger.Fatal("schema migration failed", zap.Error(err))
			}
		}
		st = pgStore
		logger.Info("database connection pool established")
	}

	// 3. Outside services
	promptSet := prompts.Default()
	if cfg.PromptsFile != "" {
		if promptSet, err = prompts.Load(cfg.PromptsFile); err != nil {
			logger.Fatal("failed to load prompts", zap.String("path", cfg.PromptsFile), zap.Error(err))
		}
	}
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; completions will fail")
	}
	provider := llm.NewOpenAIProvider(llm.Config{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		Model:     cfg.OpenAIModel,
		MaxTokens: cfg.OpenAIMaxTokens,
	}, logger)

	var payments billing.Provider = billing.Disabled{}
	if cfg.BillingEnabled() {
		payments = billing.NewStripeProvider(billing.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			PriceID:       cfg.StripePriceID,
			WebhookSecret: cfg.StripeWebhookSecret,
			AppBaseURL:    cfg.AppBaseURL,
		}, logger)
	} else {
		logger.Warn("billing is disabled; set STRIPE_SECRET_KEY and STRIPE_PRICE_ID to enable it")
	}

	// 4. Setup Router
	router, err := api.NewHandler(cfg, api.Backends{
		Store:   st,
		LLM:     provider,
		Billing: payments,
		Prompts: promptSet,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build router", zap.Error(err))
	}

	// 5. Configure and Start HTTP Server
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second, // completions can be slow
		IdleTimeout:  120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("could not listen", zap.String("port", cfg.HTTPPort), zap.Error(err))
		}
		logger.Info("server listener routine stopped")
	}()

	<-stopChan
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return
	}
	logger.Info("server shutdown complete")
}
