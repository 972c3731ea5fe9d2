package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"touradmin/internal/devbackend"
	"touradmin/pkg/config"
	"touradmin/pkg/logging"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := devbackend.NewStore()
	admin, seeded, err := store.Seed(cfg.Dev.AdminEmail, cfg.Dev.AdminPassword)
	if err != nil {
		logger.Fatal("seed", zap.Error(err))
	}
	logger.Info("seeded",
		zap.String("admin", admin.Email),
		zap.String("booking_id", seeded.ID),
		zap.String("amount", seeded.FinalAmount.StringFixed(2)),
	)
	if cfg.Gateway.KeySecret == "" {
		logger.Warn("RAZORPAY_KEY_SECRET not set, verifying signatures with the dev secret")
	}

	router := devbackend.NewRouter(devbackend.Dependencies{
		Cfg:    cfg,
		Store:  store,
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              cfg.Dev.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Dev.HTTPAddr), zap.Bool("payments", cfg.Dev.PaymentsEnabled))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
}
