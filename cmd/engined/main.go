// Package main provides the entry point for the account sync engine daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/account-sync/internal/adapter"
	"github.com/account-sync/internal/api"
	"github.com/account-sync/internal/config"
	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/session"
	"github.com/account-sync/internal/storage"
	"github.com/account-sync/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Select the persistent store backend. A backend that cannot be reached
	// does not abort startup; the engine degrades to memory-only operation.
	store := newStore(cfg, logger)
	keys := storage.NewKeys(cfg.Store.KeyPrefix)

	snapshots := storage.NewSnapshotRepository(store, keys, logger)
	sessions := session.NewManager(store, keys, snapshots, logger)

	// Optional trade archive
	var archive worker.TradeArchiver
	if cfg.Archive.Enabled {
		tradeArchive, err := storage.NewTradeArchive(&cfg.Archive)
		if err != nil {
			logger.WithError(err).Warn("Trade archive unavailable, continuing without it")
		} else {
			defer tradeArchive.Close()
			archive = tradeArchive
			logger.Info("Trade archive connected")
		}
	}

	// Remote account data source
	client := adapter.NewAccountClient(&cfg.Source, logger)

	coordinator, err := worker.NewUpdateCoordinator(&worker.Config{
		Source:             client,
		Snapshots:          snapshots,
		Sessions:           sessions,
		Store:              store,
		Keys:               keys,
		Archive:            archive,
		Logger:             logger,
		UpdateInterval:     cfg.Sync.UpdateInterval,
		ThrottleWindow:     cfg.Sync.ThrottleWindow,
		InitialDelay:       cfg.Sync.InitialDelay,
		StalenessThreshold: cfg.Sync.StalenessThreshold,
		LeaseTTL:           cfg.Sync.LeaseTTL,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create update coordinator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coordinator.StartAutoUpdate(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start auto update")
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RPS:             cfg.Server.RPS,
		Accounts:        cfg.Source.Accounts,
	}

	server := api.NewServer(serverConfig, coordinator, sessions)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":       cfg.Server.Host,
		"port":       cfg.Server.Port,
		"instanceId": coordinator.InstanceID(),
	}).Info("Account sync engine started")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := coordinator.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Coordinator did not stop cleanly")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Engine exited")
}

// newStore builds the configured store wrapped so persistence failures
// degrade instead of propagating.
func newStore(cfg *config.Config, logger *logging.Logger) *storage.SafeStore {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		redisStore, err := storage.NewRedisStore(&cfg.Store.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unreachable, running without persistence")
			return storage.NewSafeStore(nil, logger)
		}
		logger.Info("Redis store connected")
		return storage.NewSafeStore(redisStore, logger)

	case config.StoreBackendPostgres:
		pgStore, err := storage.NewPostgresStore(&cfg.Store.Postgres)
		if err != nil {
			logger.WithError(err).Warn("Postgres unreachable, running without persistence")
			return storage.NewSafeStore(nil, logger)
		}
		logger.Info("Postgres store connected")
		return storage.NewSafeStore(pgStore, logger)

	case config.StoreBackendMemory:
		logger.Info("Using in-memory store")
		return storage.NewSafeStore(storage.NewMemoryStore(), logger)

	default:
		logger.WithField("backend", cfg.Store.Backend).Warn("Unknown store backend, using in-memory store")
		return storage.NewSafeStore(storage.NewMemoryStore(), logger)
	}
}
