package services

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"housing-scraper/models"
	"housing-scraper/utils"
)

var (
	// amountRegexp captures an amount with optional thousands separators,
	// e.g. "450.000" or "1,250,000".
	amountRegexp = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})+|\d+`)
	// intRegexp captures the first run of digits
	intRegexp = regexp.MustCompile(`\d+`)
	// yearRegexp captures a plausible construction year
	yearRegexp = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)
	// postcodeRegexp captures a Dutch postcode such as "1012 AB"
	postcodeRegexp = regexp.MustCompile(`\b(\d{4})\s?([A-Za-z]{2})\b`)
	// neighbourhoodRegexp captures the text between parentheses
	neighbourhoodRegexp = regexp.MustCompile(`\(([^)]+)\)`)
)

// MalformedEntryError reports a raw entry whose required fields could not be
// coerced. The entry is skipped and counted, never fatal.
type MalformedEntryError struct {
	Field  string
	Value  string
	Reason string
}

func (e *MalformedEntryError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("malformed entry: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed entry: %s %q: %s", e.Field, e.Value, e.Reason)
}

// Normalizer turns raw extracted entries into typed Listings.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize maps one raw entry to a Listing for city. Required fields are
// id, url, address, price and size; optional fields that fail to parse are
// left at their zero value.
func (n *Normalizer) Normalize(city string, raw models.RawEntry, runID string, now time.Time) (*models.Listing, error) {
	id := raw.Get(models.FieldID)
	if id == "" {
		return nil, &MalformedEntryError{Field: models.FieldID, Reason: "missing"}
	}
	url := raw.Get(models.FieldURL)
	if url == "" {
		return nil, &MalformedEntryError{Field: models.FieldURL, Reason: "missing"}
	}

	address := normaliseText(raw.Get(models.FieldAddress))
	if raw.Get(models.FieldProject) == "true" || strings.HasPrefix(address, "Project:") {
		return nil, &MalformedEntryError{Field: models.FieldAddress, Value: address, Reason: "project listing, not a property"}
	}
	if address == "" {
		return nil, &MalformedEntryError{Field: models.FieldAddress, Reason: "missing"}
	}

	price, err := parsePrice(raw.Get(models.FieldPrice))
	if err != nil {
		return nil, &MalformedEntryError{Field: models.FieldPrice, Value: raw.Get(models.FieldPrice), Reason: err.Error()}
	}
	size, err := parseSize(raw.Get(models.FieldSize))
	if err != nil {
		return nil, &MalformedEntryError{Field: models.FieldSize, Value: raw.Get(models.FieldSize), Reason: err.Error()}
	}

	subtitle := normaliseText(raw.Get(models.FieldSubtitle))
	postcode := parsePostcode(raw.Get(models.FieldPostcode))
	if postcode == "" {
		postcode = parsePostcode(subtitle)
	}
	neighbourhood := normaliseText(raw.Get(models.FieldNeighbourhood))
	if neighbourhood == "" {
		neighbourhood = parseNeighbourhood(subtitle)
	}

	listing := &models.Listing{
		ListingID:        id,
		City:             city,
		Label:            normaliseText(raw.Get(models.FieldLabel)),
		Address:          address,
		Postcode:         postcode,
		Neighbourhood:    neighbourhood,
		Price:            price,
		SizeSqm:          size,
		RoomCount:        parseOptionalInt(raw.Get(models.FieldRooms)),
		ConstructionYear: parseYear(raw.Get(models.FieldYear)),
		Latitude:         parseCoord(raw.Get(models.FieldLatitude), 90),
		Longitude:        parseCoord(raw.Get(models.FieldLongitude), 180),
		Agent:            normaliseText(raw.Get(models.FieldAgent)),
		URL:              url,
		GMapsURL:         mapsURL(address),
		RunID:            runID,
		ScrapedAt:        now,
		LastSeen:         now,
	}

	if n.logger != nil {
		n.logger.Debug("[normalizer] %s: %s, EUR %d, %d m2", id, address, price, size)
	}
	return listing, nil
}

// parsePrice extracts an asking price in whole euros.
// Examples:
//
//	"€ 450.000 k.k."   → 450000
//	"€1,250,000 v.o.n." → 1250000
//	"Prijs op aanvraag" → error
func parsePrice(raw string) (int64, error) {
	lower := strings.ToLower(raw)
	if lower == "" {
		return 0, fmt.Errorf("missing")
	}
	if strings.Contains(lower, "aanvraag") || strings.Contains(lower, "on request") {
		return 0, fmt.Errorf("price on request")
	}

	match := amountRegexp.FindString(lower)
	if match == "" {
		return 0, fmt.Errorf("no amount")
	}
	digits := strings.NewReplacer(".", "", ",", "").Replace(match)
	price, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if price <= 0 {
		return 0, fmt.Errorf("not positive")
	}
	return price, nil
}

// parseSize extracts a living area in square meters, e.g. "75 m²" → 75.
func parseSize(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("missing")
	}
	match := intRegexp.FindString(strings.ReplaceAll(raw, ".", ""))
	if match == "" {
		return 0, fmt.Errorf("no number")
	}
	size, err := strconv.Atoi(match)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("not a positive number")
	}
	return size, nil
}

func parseOptionalInt(raw string) int {
	match := intRegexp.FindString(raw)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}

func parseYear(raw string) int {
	m := yearRegexp.FindStringSubmatch(raw)
	if len(m) < 2 {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	return year
}

func parsePostcode(raw string) string {
	m := postcodeRegexp.FindStringSubmatch(raw)
	if len(m) < 3 {
		return ""
	}
	return m[1] + " " + strings.ToUpper(m[2])
}

func parseNeighbourhood(raw string) string {
	m := neighbourhoodRegexp.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func parseCoord(raw string, limit float64) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil || v < -limit || v > limit {
		return nil
	}
	return &v
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

// mapsURL links a Google Maps search for the address.
func mapsURL(address string) string {
	return "https://www.google.com/maps/place/" + url.QueryEscape(address)
}
