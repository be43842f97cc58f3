package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"housing-scraper/models"
	"housing-scraper/services"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

// CityScraper walks one city's listing pages in order until an empty page,
// persisting listings it has not seen before.
type CityScraper struct {
	city       models.City
	store      storage.ListingStore
	fetcher    Fetcher
	source     Source
	throttle   *utils.Throttle
	normalizer *services.Normalizer
	retry      *utils.RetryConfig
	maxPages   int
	logger     *utils.Logger
	now        func() time.Time
}

// NewCityScraper creates a scraper for city. The throttle is shared with any
// other scraper issuing requests in the same process.
func NewCityScraper(city models.City, store storage.ListingStore, fetcher Fetcher, source Source,
	throttle *utils.Throttle, opts Options, logger *utils.Logger) *CityScraper {
	log := logger.With(city.Name)
	return &CityScraper{
		city:       city,
		store:      store,
		fetcher:    fetcher,
		source:     source,
		throttle:   throttle,
		normalizer: services.NewNormalizer(log),
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   opts.RetryBaseDelay,
			Logger:      log,
			Retryable:   retryableFetch,
		},
		maxPages: opts.MaxPages,
		logger:   log,
		now:      time.Now,
	}
}

// Run scrapes the city and returns its summary. It never returns an error:
// a fatal failure ends the run with status Aborted and the error attached.
func (s *CityScraper) Run(ctx context.Context, runID string) *models.CitySummary {
	summary := &models.CitySummary{
		City:        s.city.Name,
		StartedAt:   s.now(),
		StoredTotal: -1,
	}

	for page := 1; ; page++ {
		if s.maxPages > 0 && page > s.maxPages {
			s.logger.Warn("Page cap %d reached, stopping", s.maxPages)
			return s.finish(summary, nil)
		}

		url := s.source.PageURL(s.city, page)
		s.logger.Info("Fetching page %d: %s", page, url)

		body, err := s.fetchPage(ctx, url, page)
		if err != nil {
			return s.finish(summary, err)
		}

		entries, err := s.source.ExtractEntries(body)
		if err != nil {
			return s.finish(summary, &ParseError{URL: url, Page: page, Err: err})
		}
		if len(entries) == 0 {
			s.logger.Info("Page %d has no listings, pagination exhausted", page)
			return s.finish(summary, nil)
		}

		summary.Pages++
		if err := s.processEntries(ctx, entries, runID, summary); err != nil {
			return s.finish(summary, err)
		}

		s.logger.Info("Page %d done: %d entries | totals new=%d skipped=%d malformed=%d",
			page, len(entries), summary.New, summary.Skipped, summary.Malformed)
	}
}

// fetchPage fetches one page under the caller-side retry policy. Every
// attempt passes through the throttle.
func (s *CityScraper) fetchPage(ctx context.Context, url string, page int) ([]byte, error) {
	var body []byte
	var lastStatus int

	err := s.retry.Do(ctx, fmt.Sprintf("%s page %d", s.city.Name, page), func() error {
		if err := s.throttle.Wait(ctx); err != nil {
			return err
		}
		status, b, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			lastStatus = 0
			return err
		}
		lastStatus = status
		if status < 200 || status > 299 {
			return &statusError{code: status}
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, &FetchError{URL: url, Page: page, StatusCode: lastStatus, Err: err}
	}
	return body, nil
}

// processEntries persists the entries of one page. Malformed entries and
// duplicates are counted; a store failure stops the page and is returned.
func (s *CityScraper) processEntries(ctx context.Context, entries []models.RawEntry, runID string, summary *models.CitySummary) error {
	for _, raw := range entries {
		now := s.now()

		listing, err := s.normalizer.Normalize(s.city.Name, raw, runID, now)
		if err != nil {
			summary.Malformed++
			s.logger.Debug("Skipping entry %q: %v", raw.Get(models.FieldID), err)
			continue
		}

		exists, err := s.store.Exists(ctx, listing.ListingID)
		if err != nil {
			return asStoreError("exists", err)
		}
		if exists {
			if err := s.touch(ctx, listing.ListingID, now); err != nil {
				return err
			}
			summary.Skipped++
			continue
		}

		err = s.store.Insert(ctx, listing)
		var dup *storage.DuplicateKeyError
		switch {
		case err == nil:
			summary.New++
		case errors.As(err, &dup):
			// Stored between the check and the insert.
			if err := s.touch(ctx, listing.ListingID, now); err != nil {
				return err
			}
			summary.Skipped++
		default:
			return asStoreError("insert", err)
		}
	}
	return nil
}

func (s *CityScraper) touch(ctx context.Context, listingID string, now time.Time) error {
	err := s.store.TouchLastSeen(ctx, listingID, now)
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrListingNotFound) {
		s.logger.Warn("last_seen not refreshed for %s: %v", listingID, err)
		return nil
	}
	return asStoreError("touch last_seen", err)
}

func (s *CityScraper) finish(summary *models.CitySummary, err error) *models.CitySummary {
	summary.FinishedAt = s.now()
	if err != nil {
		summary.Status = models.CityStatusAborted
		summary.Err = err
		s.logger.Error("Aborted after %d page(s): %v", summary.Pages, err)
		return summary
	}
	summary.Status = models.CityStatusEnd
	s.logger.Info("Completed: %d page(s), new=%d skipped=%d malformed=%d",
		summary.Pages, summary.New, summary.Skipped, summary.Malformed)
	return summary
}

// asStoreError makes sure every store failure surfaces as a
// *storage.StoreUnavailableError.
func asStoreError(op string, err error) error {
	var su *storage.StoreUnavailableError
	if errors.As(err, &su) {
		return err
	}
	return &storage.StoreUnavailableError{Op: op, Err: err}
}
