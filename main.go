package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pnp-bridge/assembler"
	"pnp-bridge/backend"
	"pnp-bridge/cache"
	"pnp-bridge/config"
	"pnp-bridge/database"
	"pnp-bridge/events"
	"pnp-bridge/logging"
	"pnp-bridge/metrics"
	"pnp-bridge/queue"
	"pnp-bridge/redis"
	"pnp-bridge/safety"
	"pnp-bridge/translator"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("pnp-bridge starting", "backend", cfg.BackendURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Motion backend and state cache.
	motionBackend := backend.NewClient(cfg, logger)
	stateCache := cache.NewStateCache(cfg.SweepInterval, logger)
	backend.RegisterFetchers(stateCache, motionBackend)
	stateCache.Start()
	defer stateCache.Stop()
	warmed := stateCache.Warm(ctx, map[string]cache.Category{
		"position":      cache.CategoryPosition,
		"printer_state": cache.CategoryPrinterState,
	})
	logger.Debug("state cache warmed", "loaded", warmed)

	// Safety limits, hot-reloaded from file when configured.
	limits := safety.DefaultLimits()
	if cfg.LimitsFile != "" {
		loaded, err := safety.LoadLimitsFile(cfg.LimitsFile)
		if err != nil {
			logger.Error("Failed to load safety limits file", "path", cfg.LimitsFile, "error", err)
			os.Exit(1)
		}
		limits = loaded
	}
	safetyManager := safety.NewManager(limits, motionBackend, stateCache, logger)
	safetyManager.Start(ctx)
	defer safetyManager.Stop()

	if cfg.LimitsFile != "" {
		watcher, err := safety.WatchLimitsFile(cfg.LimitsFile, safetyManager, logger)
		if err != nil {
			logger.Warn("Limits file watcher not started", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	// Pipeline components.
	asm := assembler.New(logger)
	commandQueue := queue.NewCommandQueue(cfg.QueueSize, logger)
	history := queue.NewExecutionHistory(cfg.HistorySize)

	opts := translator.Options{
		Backend:        motionBackend,
		Cache:          stateCache,
		Safety:         safetyManager,
		Assembler:      asm,
		Queue:          commandQueue,
		History:        history,
		DefaultTimeout: cfg.DefaultTimeout,
		Logger:         logger,
	}

	// Optional state mirror.
	if cfg.RedisEnabled {
		mirror, err := redis.NewStateMirror(cfg)
		if err != nil {
			logger.Error("Failed to initialize Redis mirror", "error", err)
			os.Exit(1)
		}
		defer mirror.Close()
		opts.Mirror = mirror
		logger.Info("Redis state mirror enabled")
	}

	// Optional execution record persistence.
	if cfg.DBEnabled {
		db, err := database.NewDatabase(cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		opts.Store = db
		logger.Info("Execution record persistence enabled")
	}

	// Monitoring endpoint.
	m := metrics.New(commandQueue, stateCache, safetyManager, logger)
	opts.Metrics = m
	go m.Serve(cfg.MetricsAddr)

	trans := translator.New(opts)

	// Backend notification feed.
	if cfg.EventsEnabled {
		eventClient, err := events.NewClient(cfg, stateCache, logger)
		if err != nil {
			logger.Warn("Event feed unavailable, relying on cache TTLs", "error", err)
		} else {
			defer eventClient.Disconnect()
			eventClient.BindSafetyManager(safetyManager)
		}
	}

	go trans.RunConsumer(ctx)
	logger.Info("pnp-bridge running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()
	logger.Info("pnp-bridge stopped")
}
