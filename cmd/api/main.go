package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cachewarming/receipt-match-backend/internal/api"
	"github.com/cachewarming/receipt-match-backend/internal/application/decay"
	"github.com/cachewarming/receipt-match-backend/internal/application/matching"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/config"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/logging"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Configuration file path")
	flag.Parse()

	var cfg *config.Config
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			logging.NewLogger(config.LoggingConfig{}).Error("failed to load config", "path", configFile, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrEnv()
	}

	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "api")

	repo, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	matchingService := matching.NewService(repo, cfg.Matching,
		logging.NewLoggerWithSystem(cfg.Observability.Logging, "matching"))

	decayJob := decay.NewJob(repo, cfg.Decay,
		logging.NewLoggerWithSystem(cfg.Observability.Logging, "decay"))
	decayJob.Start()
	defer decayJob.Stop()

	server := api.NewServer(api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, matchingService, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	}
}
