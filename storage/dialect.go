package storage

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// dialect carries the per-driver differences. All queries use $N
// placeholders, which lib/pq, pgx and sqlite3 all accept.
type dialect struct {
	driverName string
	schema     []string
	singleConn bool
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id                SERIAL PRIMARY KEY,
		listing_id        TEXT             NOT NULL UNIQUE,
		city              TEXT             NOT NULL,
		label             TEXT             NOT NULL DEFAULT '',
		address           TEXT             NOT NULL,
		postcode          TEXT             NOT NULL DEFAULT '',
		neighbourhood     TEXT             NOT NULL DEFAULT '',
		price             BIGINT           NOT NULL,
		size_sqm          INTEGER          NOT NULL,
		room_count        INTEGER          NOT NULL DEFAULT 0,
		construction_year INTEGER          NOT NULL DEFAULT 0,
		latitude          DOUBLE PRECISION,
		longitude         DOUBLE PRECISION,
		agent             TEXT             NOT NULL DEFAULT '',
		url               TEXT             NOT NULL,
		gmaps_url         TEXT             NOT NULL DEFAULT '',
		run_id            TEXT             NOT NULL DEFAULT '',
		scraped_at        TIMESTAMPTZ      NOT NULL,
		last_seen         TIMESTAMPTZ      NOT NULL
	)`,
	`ALTER TABLE listings ADD COLUMN IF NOT EXISTS gmaps_url TEXT NOT NULL DEFAULT ''`,
	`CREATE INDEX IF NOT EXISTS idx_listings_city     ON listings(city)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_postcode ON listings(postcode)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_price    ON listings(price)`,
	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id          TEXT        PRIMARY KEY,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS city_runs (
		id              SERIAL PRIMARY KEY,
		run_id          TEXT        NOT NULL REFERENCES scrape_runs(id),
		city            TEXT        NOT NULL,
		status          TEXT        NOT NULL,
		pages           INTEGER     NOT NULL DEFAULT 0,
		new_count       INTEGER     NOT NULL DEFAULT 0,
		skipped_count   INTEGER     NOT NULL DEFAULT 0,
		malformed_count INTEGER     NOT NULL DEFAULT 0,
		error           TEXT        NOT NULL DEFAULT '',
		started_at      TIMESTAMPTZ NOT NULL,
		finished_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_city_runs_run ON city_runs(run_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		listing_id        TEXT      NOT NULL UNIQUE,
		city              TEXT      NOT NULL,
		label             TEXT      NOT NULL DEFAULT '',
		address           TEXT      NOT NULL,
		postcode          TEXT      NOT NULL DEFAULT '',
		neighbourhood     TEXT      NOT NULL DEFAULT '',
		price             INTEGER   NOT NULL,
		size_sqm          INTEGER   NOT NULL,
		room_count        INTEGER   NOT NULL DEFAULT 0,
		construction_year INTEGER   NOT NULL DEFAULT 0,
		latitude          REAL,
		longitude         REAL,
		agent             TEXT      NOT NULL DEFAULT '',
		url               TEXT      NOT NULL,
		gmaps_url         TEXT      NOT NULL DEFAULT '',
		run_id            TEXT      NOT NULL DEFAULT '',
		scraped_at        TIMESTAMP NOT NULL,
		last_seen         TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_city     ON listings(city)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_postcode ON listings(postcode)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_price    ON listings(price)`,
	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id          TEXT      PRIMARY KEY,
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS city_runs (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id          TEXT      NOT NULL REFERENCES scrape_runs(id),
		city            TEXT      NOT NULL,
		status          TEXT      NOT NULL,
		pages           INTEGER   NOT NULL DEFAULT 0,
		new_count       INTEGER   NOT NULL DEFAULT 0,
		skipped_count   INTEGER   NOT NULL DEFAULT 0,
		malformed_count INTEGER   NOT NULL DEFAULT 0,
		error           TEXT      NOT NULL DEFAULT '',
		started_at      TIMESTAMP NOT NULL,
		finished_at     TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_city_runs_run ON city_runs(run_id)`,
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres":
		return dialect{driverName: "postgres", schema: postgresSchema}, nil
	case "pgx":
		return dialect{driverName: "pgx", schema: postgresSchema}, nil
	case "sqlite3":
		// A single connection keeps :memory: databases coherent and
		// serialises writers the way SQLite wants.
		return dialect{driverName: "sqlite3", schema: sqliteSchema, singleConn: true}, nil
	default:
		return dialect{}, fmt.Errorf("storage: unsupported driver %q", driver)
	}
}
