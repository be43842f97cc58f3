package scraper

import (
	"context"
	"time"

	"github.com/google/uuid"

	"housing-scraper/models"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

// Orchestrator runs one CityScraper per configured city, sequentially, and
// aggregates their summaries into a RunReport.
type Orchestrator struct {
	cities   []models.City
	store    storage.ListingStore
	recorder storage.RunRecorder
	fetcher  Fetcher
	source   Source
	throttle *utils.Throttle
	opts     Options
	logger   *utils.Logger
	newID    func() string
	now      func() time.Time
}

// NewOrchestrator wires the shared dependencies. If store also implements
// storage.RunRecorder, every run is written to the run log.
func NewOrchestrator(cities []models.City, store storage.ListingStore, fetcher Fetcher, source Source,
	opts Options, logger *utils.Logger) *Orchestrator {
	o := &Orchestrator{
		cities:   cities,
		store:    store,
		fetcher:  fetcher,
		source:   source,
		throttle: utils.NewThrottle(opts.Throttle),
		opts:     opts,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	if rec, ok := store.(storage.RunRecorder); ok {
		o.recorder = rec
	}
	return o
}

// RunAll scrapes every configured city in order. A city that aborts is
// reported and the run moves on to the next one.
func (o *Orchestrator) RunAll(ctx context.Context) *models.RunReport {
	return o.RunCities(ctx, o.cities)
}

// RunCities is RunAll over a subset of the configured cities. Successive
// runs share the orchestrator's throttle.
func (o *Orchestrator) RunCities(ctx context.Context, cities []models.City) *models.RunReport {
	report := &models.RunReport{
		ID:        o.newID(),
		StartedAt: o.now(),
	}
	o.logger.Info("Run %s started: %d cities via %s, throttle %v",
		report.ID, len(cities), o.source.Name(), o.throttle.Delay())

	if o.recorder != nil {
		if err := o.recorder.StartRun(ctx, report.ID, report.StartedAt); err != nil {
			o.logger.Warn("Could not record run start: %v", err)
		}
	}

	for _, city := range cities {
		cs := NewCityScraper(city, o.store, o.fetcher, o.source, o.throttle, o.opts, o.logger)
		summary := cs.Run(ctx, report.ID)

		if total, err := o.store.Count(ctx, city.Name); err != nil {
			o.logger.Warn("Could not count stored listings for %s: %v", city.Name, err)
		} else {
			summary.StoredTotal = total
		}

		if o.recorder != nil {
			if err := o.recorder.RecordCity(ctx, report.ID, summary); err != nil {
				o.logger.Warn("Could not record summary for %s: %v", city.Name, err)
			}
		}
		report.Cities = append(report.Cities, summary)
	}

	report.FinishedAt = o.now()
	if o.recorder != nil {
		if err := o.recorder.FinishRun(ctx, report.ID, report.FinishedAt); err != nil {
			o.logger.Warn("Could not record run finish: %v", err)
		}
	}

	o.logger.Info("Run %s finished: new=%d skipped=%d malformed=%d aborted=%d",
		report.ID, report.TotalNew(), report.TotalSkipped(), report.TotalMalformed(), len(report.AbortedCities()))
	return report
}
