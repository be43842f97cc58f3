package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"housing-scraper/models"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

type fakeReader struct {
	listings map[string][]*models.Listing
	runs     []*models.RunRecord
	err      error
	limit    int
}

func (f *fakeReader) Count(_ context.Context, city string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.listings[city]), nil
}

func (f *fakeReader) Get(_ context.Context, id string) (*models.Listing, error) {
	for _, ls := range f.listings {
		for _, l := range ls {
			if l.ListingID == id {
				return l, nil
			}
		}
	}
	return nil, fmt.Errorf("get %q: %w", id, storage.ErrListingNotFound)
}

func (f *fakeReader) ListByCity(_ context.Context, city string) ([]*models.Listing, error) {
	return f.listings[city], f.err
}

func (f *fakeReader) LatestRuns(_ context.Context, limit int) ([]*models.RunRecord, error) {
	f.limit = limit
	return f.runs, f.err
}

func newTestServer(r *fakeReader) *httptest.Server {
	h := NewHandler(r, r, utils.Discard())
	return httptest.NewServer(h.Router())
}

func sampleReader() *fakeReader {
	return &fakeReader{
		listings: map[string][]*models.Listing{
			"Amsterdam": {
				{ListingID: "a1", City: "Amsterdam", Price: 450000},
				{ListingID: "a2", City: "Amsterdam", Price: 300000},
			},
		},
		runs: []*models.RunRecord{{ID: "run-1"}},
	}
}

func TestHandleCount(t *testing.T) {
	srv := newTestServer(sampleReader())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/cities/Amsterdam/count")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body countResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Count != 2 || body.City != "Amsterdam" {
		t.Errorf("got %d %+v", resp.StatusCode, body)
	}
}

func TestHandleListings(t *testing.T) {
	srv := newTestServer(sampleReader())
	defer srv.Close()

	tests := []struct {
		city string
		want int
	}{
		{"Amsterdam", 2},
		{"Utrecht", 0},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + "/api/cities/" + tt.city + "/listings")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		var listings []models.Listing
		err = json.NewDecoder(resp.Body).Decode(&listings)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(listings) != tt.want {
			t.Errorf("%s: got %d listings, want %d", tt.city, len(listings), tt.want)
		}
	}
}

func TestHandleListingNotFound(t *testing.T) {
	srv := newTestServer(sampleReader())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/listings/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/listings/a2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestHandleRunsLimit(t *testing.T) {
	r := sampleReader()
	srv := newTestServer(r)
	defer srv.Close()

	tests := []struct {
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"", http.StatusOK, 10},
		{"?limit=3", http.StatusOK, 3},
		{"?limit=5000", http.StatusOK, maxRunsLimit},
		{"?limit=abc", http.StatusBadRequest, 0},
		{"?limit=0", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		r.limit = 0
		resp, err := http.Get(srv.URL + "/api/runs" + tt.query)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("%q: status %d, want %d", tt.query, resp.StatusCode, tt.wantStatus)
		}
		if r.limit != tt.wantLimit {
			t.Errorf("%q: limit %d, want %d", tt.query, r.limit, tt.wantLimit)
		}
	}
}

func TestStoreUnavailableMapsTo503(t *testing.T) {
	r := sampleReader()
	r.err = &storage.StoreUnavailableError{Op: "count", Err: errors.New("down")}
	srv := newTestServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/cities/Amsterdam/count")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}
}
