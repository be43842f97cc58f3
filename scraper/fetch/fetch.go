package fetch

import (
	"context"
	"fmt"

	"housing-scraper/config"
	"housing-scraper/utils"
)

// Fetcher is a page fetcher holding resources that must be released.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (int, []byte, error)
	Close() error
}

// New builds the fetcher selected by cfg.Fetcher.
func New(cfg *config.Config, logger *utils.Logger) (Fetcher, error) {
	switch cfg.Fetcher {
	case "http", "":
		return NewHTTPFetcher(cfg.UserAgent, cfg.RequestTimeout()), nil
	case "browser":
		return NewBrowserFetcher(cfg.ChromeBin, cfg.UserAgent, cfg.RequestTimeout(), logger)
	default:
		return nil, fmt.Errorf("fetch: unknown fetcher %q", cfg.Fetcher)
	}
}
