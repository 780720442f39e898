package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"payportal/internal/bootstrap"
	"payportal/internal/config"
	cronpkg "payportal/internal/cron"
	"payportal/internal/middleware"
	"payportal/internal/payment"
	"payportal/internal/pkg/telegram"
	"payportal/internal/portal"
	"payportal/internal/repository"
	"payportal/internal/router"
	"payportal/internal/service"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database, cfg.Server.Env == "development")
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	// --- Callback replay cache (Redis with in-memory fallback) ---
	replayCache, replayErr := middleware.NewReplayCache(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		cfg.Redis.ReplayTTL,
	)
	if replayErr != nil {
		logger.Warn("Redis unavailable for callback replay, using in-memory fallback", zap.Error(replayErr))
	}

	// --- Payment report notifier ---
	var notifier service.Notifier
	tgNotifier, err := telegram.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
	if err != nil {
		logger.Warn("Telegram notifier disabled", zap.Error(err))
	} else if tgNotifier != nil {
		notifier = tgNotifier
	}

	// --- Payment core ---
	logger.Info("Payment environment", zap.Bool("sandbox", cfg.Payment.Sandbox))
	store := repository.NewTransactionRepository(db)
	gateways := payment.NewGateways(&cfg.Payment)
	orchestrator := service.NewOrchestrator(store, gateways, service.PoliciesFromConfig(&cfg.Payment), logger).
		WithNotifier(notifier)
	callbacks := service.NewCallbackProcessor(portal.NewRegistry(&cfg.Payment), store, notifier, logger)
	bridge := service.NewStatusBridge(store, orchestrator, cfg.Payment.Bridge.Secret, logger)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, router.Deps{
		Payments:    orchestrator,
		Bridge:      bridge,
		Callbacks:   callbacks,
		ReplayCache: replayCache,
		APIKey:      cfg.API.Key,
		Logger:      logger,
	})

	// --- Cron Scheduler ---
	var scheduler *cronpkg.Scheduler
	if cfg.Reconcile.Enabled {
		scheduler = cronpkg.New(cfg.Reconcile, orchestrator, repository.NewCronRunRepository(db), logger)
		if err := scheduler.Start(); err != nil {
			logger.Fatal("Failed to start cron scheduler", zap.Error(err))
		}
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting payportal server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	if scheduler != nil {
		ctx := scheduler.Stop()
		<-ctx.Done()
	}

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runDBBootstrap(logger *zap.Logger) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg, false)
	if err != nil {
		return err
	}
	if err := bootstrap.Migrate(db); err != nil {
		return err
	}
	logger.Info("Schema migration completed")
	return nil
}
