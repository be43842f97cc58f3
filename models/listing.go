package models

import (
	"strings"
	"time"
)

// Field names used in a RawEntry.
const (
	FieldID            = "id"
	FieldURL           = "url"
	FieldLabel         = "label"
	FieldAddress       = "address"
	FieldSubtitle      = "subtitle"
	FieldPrice         = "price"
	FieldSize          = "size"
	FieldRooms         = "rooms"
	FieldYear          = "year"
	FieldAgent         = "agent"
	FieldLatitude      = "latitude"
	FieldLongitude     = "longitude"
	FieldProject       = "project"
	FieldPostcode      = "postcode"
	FieldNeighbourhood = "neighbourhood"
)

// RawEntry is one property as extracted from a listing page, before any
// type coercion. Keys are the Field* constants above.
type RawEntry map[string]string

// Get returns the trimmed value of a field, or "" if absent.
func (r RawEntry) Get(field string) string {
	return strings.TrimSpace(r[field])
}

// City is a configured scrape target.
type City struct {
	Name string `yaml:"name"`
	// BaseURL is a page URL template with {city} and {page} placeholders.
	// Empty means the source's default template.
	BaseURL string `yaml:"base_url"`
	Enabled *bool  `yaml:"enabled"`
}

// Slug is the lower-cased, dash-separated city name used in source URLs.
func (c City) Slug() string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c.Name)), " ", "-")
}

// Listing is a normalized property record as stored in the listings table.
// Once inserted only LastSeen changes.
type Listing struct {
	ID               int64     `json:"id"`
	ListingID        string    `json:"listing_id"`
	City             string    `json:"city"`
	Label            string    `json:"label,omitempty"`
	Address          string    `json:"address"`
	Postcode         string    `json:"postcode,omitempty"`
	Neighbourhood    string    `json:"neighbourhood,omitempty"`
	Price            int64     `json:"price"`
	SizeSqm          int       `json:"size_sqm"`
	RoomCount        int       `json:"room_count,omitempty"`
	ConstructionYear int       `json:"construction_year,omitempty"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	Agent            string    `json:"agent,omitempty"`
	URL              string    `json:"url"`
	GMapsURL         string    `json:"gmaps_url,omitempty"`
	RunID            string    `json:"run_id"`
	ScrapedAt        time.Time `json:"scraped_at"`
	LastSeen         time.Time `json:"last_seen"`
}

// PricePerSqm returns the asking price per square meter, 0 when size is unknown.
func (l *Listing) PricePerSqm() float64 {
	if l.SizeSqm <= 0 {
		return 0
	}
	return float64(l.Price) / float64(l.SizeSqm)
}
