package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"touradmin/internal/console"
	"touradmin/pkg/config"
	"touradmin/pkg/credstore"
	"touradmin/pkg/logging"
)

func main() {
	cfg := config.Load()
	// Log lines would interleave with the prompt; keep them quiet unless asked.
	if os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := credstore.OpenFile(cfg.CachePath)
	if err != nil {
		logger.Fatal("open credential cache", zap.String("path", cfg.CachePath), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := console.New(console.Options{
		Config: cfg,
		Store:  store,
		In:     os.Stdin,
		Out:    os.Stdout,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("console", zap.Error(err))
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Error("console exited", zap.Error(err))
	}
}
