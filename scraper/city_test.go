package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"housing-scraper/models"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

var testOpts = Options{MaxRetries: 2, RetryBaseDelay: time.Millisecond}

func runCity(city string, f *fakeFetcher, src *fakeSource, st storage.ListingStore, opts Options) *models.CitySummary {
	cs := NewCityScraper(models.City{Name: city}, st, f, src, utils.NewThrottle(opts.Throttle), opts, utils.Discard())
	return cs.Run(context.Background(), "run-1")
}

// threePages scripts pages 1-3 with listings and an empty page 4.
func threePages(city string) (*fakeFetcher, *fakeSource) {
	f := newFakeFetcher()
	src := newFakeSource()
	src.pages["P1"] = entries("a", 3)
	src.pages["P2"] = entries("b", 2)
	src.pages["P3"] = entries("c", 4)
	src.pages["EMPTY"] = []models.RawEntry{}

	f.on(pageURL(city, 1), ok("P1"))
	f.on(pageURL(city, 2), ok("P2"))
	f.on(pageURL(city, 3), ok("P3"))
	f.on(pageURL(city, 4), ok("EMPTY"))
	return f, src
}

func TestCityPaginationEndsOnEmptyPage(t *testing.T) {
	f, src := threePages("Amsterdam")
	st := newFakeStore()

	s := runCity("Amsterdam", f, src, st, testOpts)

	if s.Status != models.CityStatusEnd {
		t.Fatalf("Status: got %s (%v), want end", s.Status, s.Err)
	}
	if s.Pages != 3 {
		t.Errorf("Pages: got %d, want 3", s.Pages)
	}
	if s.New != 9 || s.Skipped != 0 || s.Malformed != 0 {
		t.Errorf("counts: new=%d skipped=%d malformed=%d", s.New, s.Skipped, s.Malformed)
	}
	if st.size() != 9 {
		t.Errorf("stored: got %d, want 9", st.size())
	}
	if f.calls[pageURL("Amsterdam", 5)] != 0 {
		t.Error("fetched beyond the empty page")
	}
}

func TestCityFetchErrorAbortsWithPartialResults(t *testing.T) {
	f, src := threePages("Utrecht")
	f.on(pageURL("Utrecht", 2), fakeResponse{status: 503})
	st := newFakeStore()

	s := runCity("Utrecht", f, src, st, testOpts)

	if s.Status != models.CityStatusAborted {
		t.Fatalf("Status: got %s, want aborted", s.Status)
	}
	var fe *FetchError
	if !errors.As(s.Err, &fe) {
		t.Fatalf("expected FetchError, got %v", s.Err)
	}
	if fe.Page != 2 || fe.StatusCode != 503 {
		t.Errorf("FetchError: page=%d status=%d", fe.Page, fe.StatusCode)
	}
	if s.Pages != 1 || s.New != 3 || st.size() != 3 {
		t.Errorf("partial results: pages=%d new=%d stored=%d", s.Pages, s.New, st.size())
	}
	if got := f.calls[pageURL("Utrecht", 2)]; got != testOpts.MaxRetries {
		t.Errorf("page 2 attempts: got %d, want %d", got, testOpts.MaxRetries)
	}
	if f.calls[pageURL("Utrecht", 3)] != 0 {
		t.Error("continued past the failed page")
	}
}

func TestCityClientErrorIsNotRetried(t *testing.T) {
	f := newFakeFetcher()
	src := newFakeSource()
	f.on(pageURL("Delft", 1), fakeResponse{status: 403})

	s := runCity("Delft", f, src, newFakeStore(), Options{MaxRetries: 3, RetryBaseDelay: time.Millisecond})

	if !s.Aborted() {
		t.Fatalf("expected abort, got %s", s.Status)
	}
	if got := f.calls[pageURL("Delft", 1)]; got != 1 {
		t.Errorf("attempts: got %d, want 1", got)
	}
}

func TestCityTransientFetchErrorRecovers(t *testing.T) {
	f := newFakeFetcher()
	src := newFakeSource()
	src.pages["P1"] = entries("x", 2)
	f.on(pageURL("Leiden", 1), fakeResponse{err: errors.New("connection reset")}, ok("P1"))
	f.on(pageURL("Leiden", 2), fakeResponse{status: 502}, ok(""))

	s := runCity("Leiden", f, src, newFakeStore(), testOpts)

	if s.Status != models.CityStatusEnd {
		t.Fatalf("Status: got %s (%v), want end", s.Status, s.Err)
	}
	if s.New != 2 || s.Pages != 1 {
		t.Errorf("got new=%d pages=%d", s.New, s.Pages)
	}
}

func TestCityMalformedEntryIsolated(t *testing.T) {
	f := newFakeFetcher()
	src := newFakeSource()
	page := entries("m", 4)
	page = append(page[:2], append([]models.RawEntry{entry("bad", "Prijs op aanvraag")}, page[2:]...)...)
	src.pages["P1"] = page
	f.on(pageURL("Haarlem", 1), ok("P1"))
	f.on(pageURL("Haarlem", 2), ok(""))
	st := newFakeStore()

	s := runCity("Haarlem", f, src, st, testOpts)

	if s.Status != models.CityStatusEnd {
		t.Fatalf("Status: got %s (%v)", s.Status, s.Err)
	}
	if s.New != 4 || s.Malformed != 1 {
		t.Errorf("got new=%d malformed=%d, want 4/1", s.New, s.Malformed)
	}
	if s.Entries() != len(page) {
		t.Errorf("new+skipped+malformed = %d, want %d", s.Entries(), len(page))
	}
	if _, stored := st.listings["bad"]; stored {
		t.Error("malformed entry was stored")
	}
}

func TestCityRerunIsIdempotent(t *testing.T) {
	st := newFakeStore()

	f, src := threePages("Gouda")
	first := runCity("Gouda", f, src, st, testOpts)
	stored := st.size()

	f, src = threePages("Gouda")
	second := runCity("Gouda", f, src, st, testOpts)

	if first.New != 9 {
		t.Fatalf("first run new: got %d, want 9", first.New)
	}
	if second.New != 0 || second.Skipped != 9 {
		t.Errorf("second run: new=%d skipped=%d, want 0/9", second.New, second.Skipped)
	}
	if st.size() != stored {
		t.Errorf("store grew on rerun: %d -> %d", stored, st.size())
	}
	if len(st.touched) != 9 {
		t.Errorf("last_seen refreshed for %d listings, want 9", len(st.touched))
	}
}

func TestCityDuplicateWithinPageCountedOnce(t *testing.T) {
	f := newFakeFetcher()
	src := newFakeSource()
	src.pages["P1"] = []models.RawEntry{entry("same", "€ 300.000"), entry("same", "€ 300.000")}
	f.on(pageURL("Breda", 1), ok("P1"))
	f.on(pageURL("Breda", 2), ok(""))
	st := newFakeStore()

	s := runCity("Breda", f, src, st, testOpts)

	if s.New != 1 || s.Skipped != 1 || st.size() != 1 {
		t.Errorf("got new=%d skipped=%d stored=%d", s.New, s.Skipped, st.size())
	}
}

func TestCityThrottleInterval(t *testing.T) {
	f, src := threePages("Zwolle")
	delay := 30 * time.Millisecond

	s := runCity("Zwolle", f, src, newFakeStore(), Options{Throttle: delay, MaxRetries: 1})
	if s.Status != models.CityStatusEnd {
		t.Fatalf("Status: got %s (%v)", s.Status, s.Err)
	}

	if len(f.stamps) != 4 {
		t.Fatalf("fetches: got %d, want 4", len(f.stamps))
	}
	for i := 1; i < len(f.stamps); i++ {
		if gap := f.stamps[i].Sub(f.stamps[i-1]); gap < delay-time.Millisecond {
			t.Errorf("fetch %d started %v after the previous one, want >= %v", i, gap, delay)
		}
	}
}

func TestCityParseErrorIsNotEnd(t *testing.T) {
	f := newFakeFetcher()
	src := newFakeSource()
	src.pages["P1"] = entries("p", 2)
	f.on(pageURL("Arnhem", 1), ok("P1"))
	f.on(pageURL("Arnhem", 2), ok(parseErrorBody))

	s := runCity("Arnhem", f, src, newFakeStore(), testOpts)

	if s.Status != models.CityStatusAborted {
		t.Fatalf("Status: got %s, want aborted", s.Status)
	}
	var pe *ParseError
	if !errors.As(s.Err, &pe) || pe.Page != 2 {
		t.Fatalf("expected ParseError on page 2, got %v", s.Err)
	}
	if s.New != 2 {
		t.Errorf("New: got %d, want 2", s.New)
	}
}

func TestCityStoreUnavailableAborts(t *testing.T) {
	f, src := threePages("Almere")
	st := newFakeStore()
	st.insertErr = func(id string) error {
		if id == "a-1" {
			return errors.New("connection refused")
		}
		return nil
	}

	s := runCity("Almere", f, src, st, testOpts)

	if s.Status != models.CityStatusAborted {
		t.Fatalf("Status: got %s, want aborted", s.Status)
	}
	var su *storage.StoreUnavailableError
	if !errors.As(s.Err, &su) {
		t.Fatalf("expected StoreUnavailableError, got %v", s.Err)
	}
	if s.New != 1 {
		t.Errorf("New: got %d, want 1", s.New)
	}
	if f.calls[pageURL("Almere", 2)] != 0 {
		t.Error("fetched next page after store failure")
	}
}

func TestCityExistsFailureAborts(t *testing.T) {
	f, src := threePages("Ede")
	st := newFakeStore()
	st.existsErr = &storage.StoreUnavailableError{Op: "exists", Err: errors.New("timeout")}

	s := runCity("Ede", f, src, st, testOpts)

	var su *storage.StoreUnavailableError
	if !s.Aborted() || !errors.As(s.Err, &su) {
		t.Fatalf("expected abort with StoreUnavailableError, got %s %v", s.Status, s.Err)
	}
	if s.Pages != 1 || s.New != 0 {
		t.Errorf("got pages=%d new=%d", s.Pages, s.New)
	}
}

func TestCityInsertRaceCountsAsSkipped(t *testing.T) {
	f := newFakeFetcher()
	src := newFakeSource()
	src.pages["P1"] = entries("r", 2)
	f.on(pageURL("Assen", 1), ok("P1"))
	f.on(pageURL("Assen", 2), ok(""))
	st := newFakeStore()
	st.insertErr = func(id string) error {
		if id == "r-0" {
			return &storage.DuplicateKeyError{ListingID: id}
		}
		return nil
	}

	s := runCity("Assen", f, src, st, testOpts)

	if s.Status != models.CityStatusEnd {
		t.Fatalf("Status: got %s (%v)", s.Status, s.Err)
	}
	if s.New != 1 || s.Skipped != 1 {
		t.Errorf("got new=%d skipped=%d, want 1/1", s.New, s.Skipped)
	}
}

func TestCityMaxPagesCap(t *testing.T) {
	f, src := threePages("Tilburg")

	s := runCity("Tilburg", f, src, newFakeStore(), Options{MaxRetries: 1, MaxPages: 2})

	if s.Status != models.CityStatusEnd || s.Pages != 2 {
		t.Errorf("got status=%s pages=%d, want end/2", s.Status, s.Pages)
	}
	if f.calls[pageURL("Tilburg", 3)] != 0 {
		t.Error("fetched beyond the page cap")
	}
}
