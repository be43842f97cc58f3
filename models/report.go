package models

import "time"

// CityStatus is the terminal state of one city's run.
type CityStatus string

const (
	CityStatusEnd     CityStatus = "end"
	CityStatusAborted CityStatus = "aborted"
)

// CitySummary is the outcome of scraping one city.
type CitySummary struct {
	City       string
	Status     CityStatus
	Pages      int
	New        int
	Skipped    int
	Malformed  int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	// StoredTotal is the number of listings stored for the city after the run,
	// -1 when the count could not be read back.
	StoredTotal int
}

// Entries is the number of raw entries encountered.
func (s *CitySummary) Entries() int {
	return s.New + s.Skipped + s.Malformed
}

// Aborted reports whether the city's run stopped on a fatal error.
func (s *CitySummary) Aborted() bool {
	return s.Status == CityStatusAborted
}

// ErrText returns the abort error as text, "" if none.
func (s *CitySummary) ErrText() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// RunReport aggregates one Orchestrator run over all configured cities.
type RunReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Cities     []*CitySummary
}

// TotalNew sums new listings across all cities.
func (r *RunReport) TotalNew() int {
	n := 0
	for _, c := range r.Cities {
		n += c.New
	}
	return n
}

// TotalSkipped sums duplicate listings across all cities.
func (r *RunReport) TotalSkipped() int {
	n := 0
	for _, c := range r.Cities {
		n += c.Skipped
	}
	return n
}

// TotalMalformed sums malformed entries across all cities.
func (r *RunReport) TotalMalformed() int {
	n := 0
	for _, c := range r.Cities {
		n += c.Malformed
	}
	return n
}

// AbortedCities returns the summaries of cities whose run was aborted.
func (r *RunReport) AbortedCities() []*CitySummary {
	var out []*CitySummary
	for _, c := range r.Cities {
		if c.Aborted() {
			out = append(out, c)
		}
	}
	return out
}

// RunRecord is a persisted run as read back from the store.
type RunRecord struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	Cities     []CityRunRecord `json:"cities"`
}

// CityRunRecord is a persisted per-city summary.
type CityRunRecord struct {
	City       string    `json:"city"`
	Status     string    `json:"status"`
	Pages      int       `json:"pages"`
	New        int       `json:"new"`
	Skipped    int       `json:"skipped"`
	Malformed  int       `json:"malformed"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// MarketInsight holds price statistics for one city's stored listings.
type MarketInsight struct {
	City            string
	TotalListings   int
	PricedListings  int
	AveragePrice    float64
	MedianPrice     float64
	MinPrice        int64
	MaxPrice        int64
	AvgPricePerSqm  float64
	MostExpensive   *Listing
	ByNeighbourhood map[string]int
}
