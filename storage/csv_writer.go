package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"housing-scraper/models"
)

var csvHeader = []string{
	"listing_id", "city", "label", "address", "postcode", "neighbourhood",
	"asking_price_eur", "size_sqm", "room_count", "construction_year",
	"latitude", "longitude", "agent", "url", "scraped_at", "last_seen",
	"gmaps_url",
}

// CSVWriter exports stored listings to a CSV file for downstream consumers.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends the listings as rows.
func (c *CSVWriter) Write(listings []*models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		if err := c.writer.Write(csvRow(l)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

func csvRow(l *models.Listing) []string {
	return []string{
		l.ListingID,
		l.City,
		l.Label,
		l.Address,
		l.Postcode,
		l.Neighbourhood,
		strconv.FormatInt(l.Price, 10),
		strconv.Itoa(l.SizeSqm),
		strconv.Itoa(l.RoomCount),
		strconv.Itoa(l.ConstructionYear),
		formatCoord(l.Latitude),
		formatCoord(l.Longitude),
		l.Agent,
		l.URL,
		l.ScrapedAt.Format(time.RFC3339),
		l.LastSeen.Format(time.RFC3339),
		l.GMapsURL,
	}
}

func formatCoord(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 6, 64)
}
