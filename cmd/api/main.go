package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/referral-swap/internal/ai"
	"github.com/aman-zulfiqar/referral-swap/internal/bootstrap"
	"github.com/aman-zulfiqar/referral-swap/internal/cache"
	"github.com/aman-zulfiqar/referral-swap/internal/config"
	"github.com/aman-zulfiqar/referral-swap/internal/metrics"
	"github.com/aman-zulfiqar/referral-swap/internal/server"
	"github.com/aman-zulfiqar/referral-swap/internal/swapengine"
)

// main is the entry point for the API server
// It initializes all dependencies and starts the HTTP server with graceful shutdown
func main() {
	logger := bootstrap.NewLogger("info")

	// load .env BEFORE anything reads os.Getenv
	bootstrap.LoadEnv(logger)

	// Load and validate configuration from environment variables
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.WithError(err).Fatal("invalid swap configuration")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown (Ctrl+C, SIGTERM)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	rds := bootstrap.NewRedis(cfg)
	defer func() {
		_ = rds.Close()
	}()

	store, err := bootstrap.OpenStore(ctx, cfg, rds)
	if err != nil {
		logger.WithError(err).Fatal("failed to open state store")
	}

	oracle, registry, err := bootstrap.OpenReferrals(ctx, cfg, rds, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open referral backend")
	}

	deps := swapengine.EngineDeps{
		Store:   store,
		Oracle:  oracle,
		Metrics: metrics.Swap(),
		Logger:  logger,
	}

	// Live fan-out and the recent swaps list both need Redis
	var recent server.RecentSwapSource
	if cfg.PublishEvents {
		client, err := rds.Client(ctx)
		if err != nil {
			logger.WithError(err).Fatal("PUBLISH_EVENTS requires Redis")
		}
		deps.Publisher = cache.NewPubSubManager(client, logger)
		recent = cache.NewRedisCache(client, logger)
	}

	// Direct history writes; otherwise the indexer fills ClickHouse from pub/sub
	if cfg.RecordHistory {
		history, err := bootstrap.OpenHistory(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to open swap history")
		}
		deps.History = history
	}

	engine, err := swapengine.NewEngine(engineCfg, deps)
	if err != nil {
		logger.WithError(err).Fatal("failed to create swap engine")
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.WithError(err).Warn("engine close")
		}
	}()

	// Initialize AI agent for natural language queries (optional)
	var agent *ai.Agent
	if cfg.OpenRouterAPIKey != "" {
		a, err := ai.NewAgent(ctx, ai.AgentConfig{
			ClickHouseAddr:     cfg.ClickHouseAddr,
			ClickHouseDatabase: cfg.ClickHouseDatabase,
			ClickHouseUsername: cfg.ClickHouseUsername,
			ClickHousePassword: cfg.ClickHousePassword,
			OpenRouterAPIKey:   cfg.OpenRouterAPIKey,
			Model:              cfg.AIModel,
			Logger:             logger,
		})
		if err != nil {
			logger.WithError(err).Warn("failed to initialize ai agent")
		} else {
			agent = a
			defer func() {
				_ = agent.Close()
			}()
		}
	}

	h := &server.Handlers{
		Engine:  engine,
		Recent:  recent,
		AI:      agent,
		DevMode: cfg.DevMode,
		Logger:  logger,
	}
	if registry != nil {
		h.Registry = registry
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr,
			DevMode: cfg.DevMode,
			APIKey:  cfg.APIKey,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	st := engine.Schedule()
	logger.WithFields(logrus.Fields{
		"addr":     cfg.APIAddr,
		"store":    cfg.StoreBackend,
		"referral": cfg.ReferralBackend,
		"start":    st.Start().Format(time.RFC3339),
		"end":      st.End().Format(time.RFC3339),
	}).Info("api server starting")

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Warn("wait for shutdown")
	}
}
