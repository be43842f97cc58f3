// Package scraper walks a listing site city by city and persists what it finds.
package scraper

import (
	"context"
	"fmt"
	"time"

	"housing-scraper/models"
	"housing-scraper/scraper/pararius"
)

// Fetcher retrieves a page. A non-nil error means a transport failure; HTTP
// level failures are reported through the status code.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (status int, body []byte, err error)
}

// Source knows one listing site's page addressing and markup.
type Source interface {
	Name() string
	PageURL(city models.City, page int) string
	// ExtractEntries returns the raw entries of a page. An empty slice with a
	// nil error means the page is well-formed but holds no listings.
	ExtractEntries(body []byte) ([]models.RawEntry, error)
}

// NewSource returns the Source registered under name.
func NewSource(name string) (Source, error) {
	switch name {
	case "pararius", "":
		return pararius.New(), nil
	default:
		return nil, fmt.Errorf("scraper: unknown source %q", name)
	}
}

// Options tunes a scrape.
type Options struct {
	// Throttle is the minimum interval between the starts of two fetches.
	Throttle time.Duration
	// MaxRetries is the number of fetch attempts per page, at least 1.
	MaxRetries     int
	RetryBaseDelay time.Duration
	// MaxPages caps the pages visited per city; 0 means no cap.
	MaxPages int
}

// FetchError reports a page that could not be fetched. It aborts the city.
type FetchError struct {
	URL        string
	Page       int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch page %d (%s): status %d", e.Page, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a page whose structure was not recognised. It aborts
// the city and is distinct from an empty page.
type ParseError struct {
	URL  string
	Page int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// statusError carries a non-2xx status between fetch attempts.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// retryableFetch reports whether a failed attempt is worth repeating:
// transport failures, 429 and 5xx are; other statuses are not.
func retryableFetch(err error) bool {
	se, ok := err.(*statusError)
	if !ok {
		return true
	}
	return se.code == 429 || se.code >= 500
}
