// Package app wires a scrape run and its reporting sinks together. It is
// shared by the one-shot binary and the queue worker.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"housing-scraper/config"
	"housing-scraper/models"
	"housing-scraper/notify"
	"housing-scraper/scraper"
	"housing-scraper/services"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

// Store is what a run needs from the persistent store.
type Store interface {
	storage.ListingStore
	storage.ListingReader
}

// Publisher sends events; *notify.Queue implements it.
type Publisher interface {
	Publish(queueName string, message notify.Message) error
}

// Runner performs scrape runs and feeds the report to the configured sinks.
type Runner struct {
	cfg       *config.Config
	store     Store
	orch      *scraper.Orchestrator
	publisher Publisher
	insights  *services.InsightService
	out       io.Writer
	logger    *utils.Logger
}

// NewRunner creates a Runner and its single Orchestrator. publisher may be
// nil.
func NewRunner(cfg *config.Config, store Store, fetcher scraper.Fetcher, source scraper.Source,
	publisher Publisher, out io.Writer, logger *utils.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     store,
		orch:      scraper.NewOrchestrator(cfg.Cities, store, fetcher, source, ScrapeOptions(cfg), logger.With("scraper")),
		publisher: publisher,
		insights:  services.NewInsightService(logger),
		out:       out,
		logger:    logger,
	}
}

// ScrapeOptions derives the scrape tuning from the configuration.
func ScrapeOptions(cfg *config.Config) scraper.Options {
	return scraper.Options{
		Throttle:       cfg.Throttle(),
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.Throttle(),
		MaxPages:       cfg.MaxPages,
	}
}

// StoreOptions derives the store connection settings from the configuration.
func StoreOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DSN(),
		PingAttempts: cfg.MaxRetries,
		PingDelay:    2 * time.Second,
	}
}

// Run scrapes cities, or the configured cities when cities is empty, then
// prints the report and insights, exports CSV and publishes the completion
// event. cities must come from the configuration, see config.ResolveCities.
// Sink failures are logged and do not affect the returned report.
func (r *Runner) Run(ctx context.Context, cities []models.City) *models.RunReport {
	if len(cities) == 0 {
		cities = r.cfg.Cities
	}

	report := r.orch.RunCities(ctx, cities)

	services.PrintRunReport(r.out, report)

	stored := r.printInsights(ctx, cities)

	if r.cfg.CSVExportPath != "" {
		if err := r.exportCSV(stored); err != nil {
			r.logger.Error("CSV export failed: %v", err)
		} else {
			r.logger.Info("Exported %d listings to %s", len(stored), r.cfg.CSVExportPath)
		}
	}

	if r.publisher != nil {
		if err := r.publish(report); err != nil {
			r.logger.Error("Publishing run event failed: %v", err)
		} else {
			r.logger.Info("Published %s to %s", notify.EventRunCompleted, r.cfg.AMQPQueue)
		}
	}
	return report
}

// printInsights prints per-city market insights and returns every listing
// read back for them.
func (r *Runner) printInsights(ctx context.Context, cities []models.City) []*models.Listing {
	var all []*models.Listing

	fmt.Fprintf(r.out, "  MARKET INSIGHTS\n\n")
	for _, city := range cities {
		listings, err := r.store.ListByCity(ctx, city.Name)
		if err != nil {
			r.logger.Error("Failed to read listings for %s: %v", city.Name, err)
			continue
		}
		r.insights.Print(r.out, r.insights.Generate(city.Name, listings))
		all = append(all, listings...)
	}
	return all
}

func (r *Runner) exportCSV(listings []*models.Listing) (err error) {
	var w storage.ListingWriter
	w, err = storage.NewCSVWriter(r.cfg.CSVExportPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	return w.Write(listings)
}

func (r *Runner) publish(report *models.RunReport) error {
	msg, err := notify.NewRunCompletedMessage(report)
	if err != nil {
		return err
	}
	return r.publisher.Publish(r.cfg.AMQPQueue, msg)
}
