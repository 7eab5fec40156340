package store

import (
	"database/sql"
	"time"
)

// ScrapeRun represents a single pass over the catalog for auditing.
type ScrapeRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	TriggeredBy   string // "scheduled", "manual", "startup"
	ProductsSeen  int
	ProductsNew   int
	PricesChanged int
	Errors        int
	Status        string // "running", "completed", "failed"
	Notes         sql.NullString
}

// StartScrapeRun creates a new scrape run record and returns it.
func (s *Store) StartScrapeRun(triggeredBy string) (*ScrapeRun, error) {
	run := &ScrapeRun{
		StartedAt:   time.Now().UTC(),
		TriggeredBy: triggeredBy,
		Status:      "running",
	}

	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (started_at, triggered_by, status)
		VALUES (?, ?, 'running')
	`, run.StartedAt, run.TriggeredBy)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteScrapeRun updates the scrape run with its counters and final status.
func (s *Store) CompleteScrapeRun(run *ScrapeRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	if run.Status == "running" {
		run.Status = "completed"
	}

	_, err := s.db.Exec(`
		UPDATE scrape_runs SET
			finished_at = ?,
			products_seen = ?,
			products_new = ?,
			prices_changed = ?,
			errors = ?,
			status = ?,
			notes = ?
		WHERE id = ?
	`, run.FinishedAt, run.ProductsSeen, run.ProductsNew, run.PricesChanged,
		run.Errors, run.Status, run.Notes, run.ID)
	return err
}

// LastScrapeRun returns the most recently started run, running or not.
func (s *Store) LastScrapeRun() (*ScrapeRun, error) {
	row := s.db.QueryRow(`
		SELECT id, started_at, finished_at, triggered_by, products_seen, products_new, prices_changed, errors, status, notes
		FROM scrape_runs
		ORDER BY started_at DESC
		LIMIT 1
	`)

	var run ScrapeRun
	err := row.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.TriggeredBy,
		&run.ProductsSeen, &run.ProductsNew, &run.PricesChanged, &run.Errors, &run.Status, &run.Notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRecentScrapeRuns returns the latest runs, newest first.
func (s *Store) GetRecentScrapeRuns(limit int) ([]ScrapeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, triggered_by, products_seen, products_new, prices_changed, errors, status, notes
		FROM scrape_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ScrapeRun
	for rows.Next() {
		var run ScrapeRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.TriggeredBy,
			&run.ProductsSeen, &run.ProductsNew, &run.PricesChanged, &run.Errors, &run.Status, &run.Notes); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
