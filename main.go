package main

import (
	"context"
	"fmt"
	"os"

	"housing-scraper/app"
	"housing-scraper/config"
	"housing-scraper/notify"
	"housing-scraper/scraper"
	"housing-scraper/scraper/fetch"
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

	logger.Info("=== Housing Scraper starting ===")
	logger.Info("Config: %d cities | source: %s | fetcher: %s | throttle: %dms | retries: %d | max pages: %d",
		len(cfg.Cities), cfg.Source, cfg.Fetcher, cfg.ThrottleMs, cfg.MaxRetries, cfg.MaxPages)

	ctx := context.Background()

	store, err := storage.Open(ctx, app.StoreOptions(cfg), logger)
	if err != nil {
		logger.Error("Failed to connect to the %s store: %v", cfg.DBDriver, err)
		return 1
	}
	defer store.Close()

	source, err := scraper.NewSource(cfg.Source)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}

	fetcher, err := fetch.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to create fetcher: %v", err)
		return 1
	}
	defer fetcher.Close()

	var publisher app.Publisher
	if cfg.AMQPURL != "" {
		queue := &notify.Queue{ConnString: cfg.AMQPURL}
		defer queue.Close()
		publisher = queue
	}

	runner := app.NewRunner(cfg, store, fetcher, source, publisher, os.Stdout, logger)
	report := runner.Run(ctx, nil)

	fmt.Printf("  Done. %d new listings across %d cities (%d aborted) | store: %s\n\n",
		report.TotalNew(), len(report.Cities), len(report.AbortedCities()), cfg.DBDriver)
	return 0
}
