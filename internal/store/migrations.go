package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS products (
    tpnc TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    brand TEXT,
    description TEXT,
    unit_of_measure TEXT,
    unit_price REAL,
    image_url TEXT,
    product_url TEXT,
    first_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_scraped_at DATETIME,
    active BOOLEAN DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS price_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tpnc TEXT NOT NULL REFERENCES products(tpnc),
    captured_at TEXT NOT NULL,
    actual_price REAL,
    clubcard_price REAL,
    is_promotion BOOLEAN NOT NULL DEFAULT FALSE,
    promo_desc TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_price_history_tpnc ON price_history(tpnc, captured_at);
CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
`,
	},
	{
		Version:     2,
		Description: "Add scrape_runs audit table",
		SQL: `
CREATE TABLE IF NOT EXISTS scrape_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    triggered_by TEXT NOT NULL,
    products_seen INTEGER DEFAULT 0,
    products_new INTEGER DEFAULT 0,
    prices_changed INTEGER DEFAULT 0,
    errors INTEGER DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running',
    notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_scrape_runs_started ON scrape_runs(started_at);
`,
	},
	{
		Version:     3,
		Description: "Add quality status and raw payload to price rows",
		SQL: `
ALTER TABLE price_history ADD COLUMN qc_status INTEGER DEFAULT 0;
ALTER TABLE price_history ADD COLUMN raw_json TEXT;
`,
	},
	{
		Version:     4,
		Description: "Track full-detail scrapes separately from price-only scrapes",
		SQL: `
ALTER TABLE products ADD COLUMN last_full_scrape DATETIME;
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
