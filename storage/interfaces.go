package storage

import (
	"context"
	"time"

	"housing-scraper/models"
)

// ListingStore is the set of store operations a city scrape needs.
type ListingStore interface {
	Exists(ctx context.Context, listingID string) (bool, error)
	Insert(ctx context.Context, listing *models.Listing) error
	TouchLastSeen(ctx context.Context, listingID string, ts time.Time) error
	Count(ctx context.Context, city string) (int, error)
}

// ListingReader serves read-back queries for reporting and export.
type ListingReader interface {
	Count(ctx context.Context, city string) (int, error)
	Get(ctx context.Context, listingID string) (*models.Listing, error)
	ListByCity(ctx context.Context, city string) ([]*models.Listing, error)
}

// RunRecorder persists the run log.
type RunRecorder interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	RecordCity(ctx context.Context, runID string, summary *models.CitySummary) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time) error
}

// RunReader reads back persisted runs.
type RunReader interface {
	LatestRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
}

// ListingWriter is the interface any export backend must satisfy.
type ListingWriter interface {
	Write(listings []*models.Listing) error
	Close() error
}
