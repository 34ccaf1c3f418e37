// ====================================
// File: cmd/trophy/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/app"
	"github.com/hlhdaiaaii/trophy-token/internal/config"
	"github.com/hlhdaiaaii/trophy-token/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	if cfg.LogFile != "" {
		logCfg.LogFile = cfg.LogFile
	}
	appLogger, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	appLogger.Info("Starting trophy sale runner",
		zap.String("config", *configPath),
		zap.String("scenario", cfg.ScenarioFile))

	runner, err := app.NewRunner(cfg, appLogger.Logger)
	if err != nil {
		appLogger.Fatal("Failed to initialize runner", zap.Error(err))
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil {
		appLogger.Fatal("Runner execution error", zap.Error(err))
	}
	appLogger.Info("Shutdown complete")
}
