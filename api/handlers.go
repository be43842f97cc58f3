// Package api serves stored listings and the run log over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"housing-scraper/models"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

const maxRunsLimit = 100

type Handler struct {
	listings storage.ListingReader
	runs     storage.RunReader
	logger   *utils.Logger
}

func NewHandler(listings storage.ListingReader, runs storage.RunReader, logger *utils.Logger) *Handler {
	return &Handler{listings: listings, runs: runs, logger: logger.With("api")}
}

// Router returns the routes served by the handler.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/cities/{city}/count", h.HandleCount).Methods(http.MethodGet)
	r.HandleFunc("/api/cities/{city}/listings", h.HandleListings).Methods(http.MethodGet)
	r.HandleFunc("/api/listings/{id}", h.HandleListing).Methods(http.MethodGet)
	r.HandleFunc("/api/runs", h.HandleRuns).Methods(http.MethodGet)
	return r
}

type countResponse struct {
	City  string `json:"city"`
	Count int    `json:"count"`
}

func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	n, err := h.listings.Count(r.Context(), city)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{City: city, Count: n})
}

func (h *Handler) HandleListings(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	listings, err := h.listings.ListByCity(r.Context(), city)
	if err != nil {
		h.fail(w, err)
		return
	}
	if listings == nil {
		listings = []*models.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

func (h *Handler) HandleListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listings.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.runs.LatestRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrListingNotFound) {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	h.logger.Error("Request failed: %v", err)
	var su *storage.StoreUnavailableError
	if errors.As(err, &su) {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
