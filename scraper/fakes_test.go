package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"housing-scraper/models"
	"housing-scraper/storage"
)

type fakeResponse struct {
	status int
	body   string
	err    error
}

// fakeFetcher serves a scripted response sequence per URL; the last
// response repeats. Unknown URLs get a 404.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]fakeResponse
	calls     map[string]int
	stamps    []time.Time
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: map[string][]fakeResponse{}, calls: map[string]int{}}
}

func (f *fakeFetcher) on(url string, seq ...fakeResponse) {
	f.responses[url] = seq
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[url]++
	f.stamps = append(f.stamps, time.Now())

	seq := f.responses[url]
	if len(seq) == 0 {
		return 404, nil, nil
	}
	r := seq[min(f.calls[url]-1, len(seq)-1)]
	return r.status, []byte(r.body), r.err
}

func ok(body string) fakeResponse { return fakeResponse{status: 200, body: body} }

const parseErrorBody = "<garbage>"

// fakeSource treats the page body as a key into its entry table.
type fakeSource struct {
	pages map[string][]models.RawEntry
}

func newFakeSource() *fakeSource {
	return &fakeSource{pages: map[string][]models.RawEntry{}}
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) PageURL(city models.City, page int) string {
	return pageURL(city.Name, page)
}

func (s *fakeSource) ExtractEntries(body []byte) ([]models.RawEntry, error) {
	if string(body) == parseErrorBody {
		return nil, errors.New("no result list")
	}
	return s.pages[string(body)], nil
}

func pageURL(city string, page int) string {
	return fmt.Sprintf("https://listings.test/%s/page-%d", models.City{Name: city}.Slug(), page)
}

// fakeStore is an in-memory ListingStore with error injection.
type fakeStore struct {
	mu        sync.Mutex
	listings  map[string]*models.Listing
	existsErr error
	insertErr func(id string) error
	touchErr  error
	countErr  error
	touched   map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{listings: map[string]*models.Listing{}, touched: map[string]time.Time{}}
}

func (s *fakeStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, found := s.listings[id]
	return found, nil
}

func (s *fakeStore) Insert(_ context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		if err := s.insertErr(l.ListingID); err != nil {
			return err
		}
	}
	if _, found := s.listings[l.ListingID]; found {
		return &storage.DuplicateKeyError{ListingID: l.ListingID}
	}
	s.listings[l.ListingID] = l
	return nil
}

func (s *fakeStore) TouchLastSeen(_ context.Context, id string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchErr != nil {
		return s.touchErr
	}
	l, found := s.listings[id]
	if !found {
		return fmt.Errorf("touch %q: %w", id, storage.ErrListingNotFound)
	}
	l.LastSeen = ts
	s.touched[id] = ts
	return nil
}

func (s *fakeStore) Count(_ context.Context, city string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, l := range s.listings {
		if l.City == city {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listings)
}

// recordingStore adds the run log to fakeStore.
type recordingStore struct {
	*fakeStore
	started  []string
	recorded []*models.CitySummary
	finished []string
}

func (r *recordingStore) StartRun(_ context.Context, runID string, _ time.Time) error {
	r.started = append(r.started, runID)
	return nil
}

func (r *recordingStore) RecordCity(_ context.Context, _ string, s *models.CitySummary) error {
	r.recorded = append(r.recorded, s)
	return nil
}

func (r *recordingStore) FinishRun(_ context.Context, runID string, _ time.Time) error {
	r.finished = append(r.finished, runID)
	return nil
}

func entry(id, price string) models.RawEntry {
	return models.RawEntry{
		models.FieldID:      id,
		models.FieldURL:     "https://listings.test/koop/" + id,
		models.FieldAddress: "Straat " + id,
		models.FieldPrice:   price,
		models.FieldSize:    "80 m²",
	}
}

// entries builds n valid entries with ids prefix-0 .. prefix-(n-1).
func entries(prefix string, n int) []models.RawEntry {
	out := make([]models.RawEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, entry(fmt.Sprintf("%s-%d", prefix, i), "€ 400.000 k.k."))
	}
	return out
}
