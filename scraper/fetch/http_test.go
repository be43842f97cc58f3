package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"housing-scraper/config"
	"housing-scraper/utils"
)

func TestHTTPFetcherReturnsStatusAndBody(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("test-agent/1.0", 5*time.Second)
	defer f.Close()

	status, body, err := f.Fetch(context.Background(), srv.URL+"/page-1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if status != http.StatusOK || string(body) != "<html>ok</html>" {
		t.Errorf("got %d %q", status, body)
	}
	if gotUA != "test-agent/1.0" {
		t.Errorf("User-Agent: got %q", gotUA)
	}

	status, _, err = f.Fetch(context.Background(), srv.URL+"/missing")
	if err != nil {
		t.Fatalf("Fetch of a 404 must not error: %v", err)
	}
	if status != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", status)
	}
}

func TestHTTPFetcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := NewHTTPFetcher("ua", time.Second)
	if _, _, err := f.Fetch(context.Background(), url); err == nil {
		t.Error("expected transport error from a closed server")
	}
}

func TestHTTPFetcherBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("ua", time.Second)
	defer f.Close()

	f.maxBody = 64
	if _, body, err := f.Fetch(context.Background(), srv.URL); err != nil || len(body) != 64 {
		t.Fatalf("body at the limit: %d bytes, %v", len(body), err)
	}

	f.maxBody = 63
	if _, body, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Errorf("expected error for a body over the limit, got %d bytes", len(body))
	}
}

func TestHTTPFetcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher("ua", 50*time.Millisecond)
	if _, _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("expected timeout error")
	}
}

func TestNewSelectsFetcher(t *testing.T) {
	f, err := New(&config.Config{Fetcher: "http", UserAgent: "ua", RequestTimeoutSec: 1}, utils.Discard())
	if err != nil {
		t.Fatalf("New(http): %v", err)
	}
	if _, isHTTP := f.(*HTTPFetcher); !isHTTP {
		t.Errorf("got %T, want *HTTPFetcher", f)
	}

	if _, err := New(&config.Config{Fetcher: "carrier-pigeon"}, utils.Discard()); err == nil {
		t.Error("expected error for unknown fetcher")
	}
}
