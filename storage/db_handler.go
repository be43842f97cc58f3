package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"housing-scraper/models"
	"housing-scraper/utils"
)

// Options configures how DBHandler connects.
type Options struct {
	Driver string
	DSN    string

	// PingAttempts bounds how often the initial connectivity check is tried.
	PingAttempts int
	PingDelay    time.Duration
}

// DBHandler is the only component that talks to the persistent store.
// Operations never retry internally; retry policy belongs to the caller.
type DBHandler struct {
	db      *sql.DB
	logger  *utils.Logger
	exists  *sql.Stmt
	dialect dialect
}

// Open connects to the store, verifies connectivity, creates the schema and
// returns a ready-to-use DBHandler.
func Open(ctx context.Context, opts Options, logger *utils.Logger) (*DBHandler, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	if d.driverName == "sqlite3" {
		if err := ensureDir(opts.DSN); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.driverName, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	if d.singleConn {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	retry := &utils.RetryConfig{
		MaxAttempts: opts.PingAttempts,
		BaseDelay:   opts.PingDelay,
		Logger:      logger,
	}
	if err := retry.Do(ctx, "storage-ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	h := &DBHandler{db: db, logger: logger.With("storage"), dialect: d}
	if err := h.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	h.exists, err = db.PrepareContext(ctx, `SELECT EXISTS(SELECT 1 FROM listings WHERE listing_id = $1)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: prepare exists: %w", err)
	}

	h.logger.Info("Connected (%s), schema ready", opts.Driver)
	return h, nil
}

func (h *DBHandler) migrate(ctx context.Context) error {
	for _, stmt := range h.dialect.schema {
		if _, err := h.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether a listing with the given external id is stored.
func (h *DBHandler) Exists(ctx context.Context, listingID string) (bool, error) {
	var found bool
	if err := h.exists.QueryRowContext(ctx, listingID).Scan(&found); err != nil {
		return false, unavailable("exists", err)
	}
	return found, nil
}

// Insert stores a new listing in its own transaction. It fails with
// *DuplicateKeyError if the id is already present and *StoreUnavailableError
// on any other store failure; a failed insert leaves no row behind.
func (h *DBHandler) Insert(ctx context.Context, l *models.Listing) (err error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("insert", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO listings (
			listing_id, city, label, address, postcode, neighbourhood,
			price, size_sqm, room_count, construction_year, latitude, longitude,
			agent, url, gmaps_url, run_id, scraped_at, last_seen
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		l.ListingID, l.City, l.Label, l.Address, l.Postcode, l.Neighbourhood,
		l.Price, l.SizeSqm, l.RoomCount, l.ConstructionYear, nullFloat(l.Latitude), nullFloat(l.Longitude),
		l.Agent, l.URL, l.GMapsURL, l.RunID, l.ScrapedAt.UTC(), l.LastSeen.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &DuplicateKeyError{ListingID: l.ListingID}
		}
		return unavailable("insert", err)
	}

	if err = tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return &DuplicateKeyError{ListingID: l.ListingID}
		}
		return unavailable("insert commit", err)
	}
	return nil
}

// TouchLastSeen refreshes only the last_seen timestamp of a stored listing.
func (h *DBHandler) TouchLastSeen(ctx context.Context, listingID string, ts time.Time) error {
	res, err := h.db.ExecContext(ctx, `UPDATE listings SET last_seen = $1 WHERE listing_id = $2`, ts.UTC(), listingID)
	if err != nil {
		return unavailable("touch last_seen", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("touch last_seen", err)
	}
	if n == 0 {
		return fmt.Errorf("touch %q: %w", listingID, ErrListingNotFound)
	}
	return nil
}

// Count returns the number of stored listings for a city.
func (h *DBHandler) Count(ctx context.Context, city string) (int, error) {
	var n int
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE city = $1`, city).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

const listingColumns = `id, listing_id, city, label, address, postcode, neighbourhood,
	price, size_sqm, room_count, construction_year, latitude, longitude,
	agent, url, gmaps_url, run_id, scraped_at, last_seen`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	l := &models.Listing{}
	var lat, lon sql.NullFloat64
	if err := row.Scan(
		&l.ID, &l.ListingID, &l.City, &l.Label, &l.Address, &l.Postcode, &l.Neighbourhood,
		&l.Price, &l.SizeSqm, &l.RoomCount, &l.ConstructionYear, &lat, &lon,
		&l.Agent, &l.URL, &l.GMapsURL, &l.RunID, &l.ScrapedAt, &l.LastSeen,
	); err != nil {
		return nil, err
	}
	if lat.Valid {
		l.Latitude = &lat.Float64
	}
	if lon.Valid {
		l.Longitude = &lon.Float64
	}
	return l, nil
}

// Get reads back one listing by its external id.
func (h *DBHandler) Get(ctx context.Context, listingID string) (*models.Listing, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE listing_id = $1`, listingID)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %q: %w", listingID, ErrListingNotFound)
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return l, nil
}

// ListByCity returns every stored listing of a city, oldest first.
func (h *DBHandler) ListByCity(ctx context.Context, city string) ([]*models.Listing, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE city = $1 ORDER BY id`, city)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, unavailable("list scan", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return listings, nil
}

// StartRun records the start of an orchestrator run.
func (h *DBHandler) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := h.db.ExecContext(ctx, `INSERT INTO scrape_runs (id, started_at) VALUES ($1, $2)`, runID, startedAt.UTC())
	if err != nil {
		return unavailable("start run", err)
	}
	return nil
}

// RecordCity stores one city's summary under a run.
func (h *DBHandler) RecordCity(ctx context.Context, runID string, s *models.CitySummary) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO city_runs (
			run_id, city, status, pages, new_count, skipped_count, malformed_count,
			error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		runID, s.City, string(s.Status), s.Pages, s.New, s.Skipped, s.Malformed,
		s.ErrText(), s.StartedAt.UTC(), s.FinishedAt.UTC(),
	)
	if err != nil {
		return unavailable("record city", err)
	}
	return nil
}

// FinishRun stamps the end time of a run.
func (h *DBHandler) FinishRun(ctx context.Context, runID string, finishedAt time.Time) error {
	_, err := h.db.ExecContext(ctx, `UPDATE scrape_runs SET finished_at = $1 WHERE id = $2`, finishedAt.UTC(), runID)
	if err != nil {
		return unavailable("finish run", err)
	}
	return nil
}

// LatestRuns returns up to limit runs, newest first, with their city rows.
func (h *DBHandler) LatestRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, unavailable("latest runs", err)
	}

	var runs []*models.RunRecord
	for rows.Next() {
		r := &models.RunRecord{}
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished); err != nil {
			rows.Close()
			return nil, unavailable("latest runs scan", err)
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, unavailable("latest runs", err)
	}
	rows.Close()

	// City rows are read after the run cursor is closed: sqlite3 runs on a
	// single connection.
	for _, r := range runs {
		cities, err := h.cityRuns(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		r.Cities = cities
	}
	return runs, nil
}

func (h *DBHandler) cityRuns(ctx context.Context, runID string) ([]models.CityRunRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT city, status, pages, new_count, skipped_count, malformed_count, error, started_at, finished_at
		FROM city_runs WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, unavailable("city runs", err)
	}
	defer rows.Close()

	var out []models.CityRunRecord
	for rows.Next() {
		var c models.CityRunRecord
		if err := rows.Scan(&c.City, &c.Status, &c.Pages, &c.New, &c.Skipped, &c.Malformed,
			&c.Error, &c.StartedAt, &c.FinishedAt); err != nil {
			return nil, unavailable("city runs scan", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close releases the prepared statements and the connection pool.
func (h *DBHandler) Close() error {
	if h.exists != nil {
		_ = h.exists.Close()
	}
	return h.db.Close()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// ensureDir creates the parent directory of a sqlite database file.
func ensureDir(dsn string) error {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return nil
}
