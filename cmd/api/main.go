package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"housing-scraper/api"
	"housing-scraper/app"
	"housing-scraper/config"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := utils.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration: %v", err)
		return 1
	}
	logger.SetLevel(utils.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, app.StoreOptions(cfg), logger)
	if err != nil {
		logger.Error("Failed to connect to the %s store: %v", cfg.DBDriver, err)
		return 1
	}
	defer store.Close()

	handler := api.NewHandler(store, store, logger)
	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("API listening on %s", cfg.APIAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed: %v", err)
		return 1
	}
	logger.Info("API stopped")
	return 0
}
