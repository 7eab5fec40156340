package store

import (
	"database/sql"
	"strings"
	"time"

	"pricewatch/internal/models"
	"pricewatch/internal/series"
)

// SearchLimit caps how many products a catalog search returns.
const SearchLimit = 20

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

// Location returns the timezone whose day boundaries the tracker uses.
func (s *Store) Location() *time.Location {
	return s.loc
}

func (s *Store) UpsertProduct(p models.Product) error {
	_, err := s.db.Exec(`
		INSERT INTO products (tpnc, name, brand, description, unit_of_measure, unit_price, image_url, product_url, first_seen_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tpnc) DO UPDATE SET
			name = excluded.name,
			brand = excluded.brand,
			description = excluded.description,
			unit_of_measure = excluded.unit_of_measure,
			unit_price = excluded.unit_price,
			image_url = excluded.image_url,
			product_url = excluded.product_url,
			active = excluded.active
	`, p.TPNC, p.Name, p.Brand, p.Description, p.UnitOfMeasure, p.UnitPrice, p.ImageURL, p.ProductURL, time.Now().UTC(), p.Active)
	return err
}

func (s *Store) GetProduct(tpnc string) (*models.Product, error) {
	row := s.db.QueryRow(`
		SELECT tpnc, name, brand, description, unit_of_measure, unit_price, image_url, product_url, first_seen_at, last_scraped_at, last_full_scrape, active
		FROM products
		WHERE tpnc = ?
	`, tpnc)

	var p models.Product
	err := row.Scan(&p.TPNC, &p.Name, &p.Brand, &p.Description, &p.UnitOfMeasure, &p.UnitPrice, &p.ImageURL, &p.ProductURL, &p.FirstSeenAt, &p.LastScrapedAt, &p.LastFullScrape, &p.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ProductExists(tpnc string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM products WHERE tpnc = ?`, tpnc).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SearchProducts matches the query against product names and identifiers,
// capped at SearchLimit rows.
func (s *Store) SearchProducts(query string) ([]models.Product, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.db.Query(`
		SELECT tpnc, name, brand, description, unit_of_measure, unit_price, image_url, product_url, first_seen_at, last_scraped_at, last_full_scrape, active
		FROM products
		WHERE name LIKE ? OR tpnc LIKE ?
		ORDER BY name ASC
		LIMIT ?
	`, pattern, pattern, SearchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.TPNC, &p.Name, &p.Brand, &p.Description, &p.UnitOfMeasure, &p.UnitPrice, &p.ImageURL, &p.ProductURL, &p.FirstSeenAt, &p.LastScrapedAt, &p.LastFullScrape, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) ListActiveProducts() ([]models.Product, error) {
	rows, err := s.db.Query(`
		SELECT tpnc, name, brand, description, unit_of_measure, unit_price, image_url, product_url, first_seen_at, last_scraped_at, last_full_scrape, active
		FROM products
		WHERE active = TRUE
		ORDER BY tpnc ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.TPNC, &p.Name, &p.Brand, &p.Description, &p.UnitOfMeasure, &p.UnitPrice, &p.ImageURL, &p.ProductURL, &p.FirstSeenAt, &p.LastScrapedAt, &p.LastFullScrape, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// LastScraped returns each known product's most recent scrape time, keyed by
// tpnc. Products never scraped are absent from the map.
func (s *Store) LastScraped() (map[string]time.Time, error) {
	rows, err := s.db.Query(`SELECT tpnc, last_scraped_at FROM products WHERE last_scraped_at IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]time.Time)
	for rows.Next() {
		var tpnc string
		var at time.Time
		if err := rows.Scan(&tpnc, &at); err != nil {
			return nil, err
		}
		result[tpnc] = at
	}
	return result, rows.Err()
}

func (s *Store) TouchProductScraped(tpnc string, fullScrape bool, at time.Time) error {
	if fullScrape {
		_, err := s.db.Exec(`UPDATE products SET last_scraped_at = ?, last_full_scrape = ? WHERE tpnc = ?`, at.UTC(), at.UTC(), tpnc)
		return err
	}
	_, err := s.db.Exec(`UPDATE products SET last_scraped_at = ? WHERE tpnc = ?`, at.UTC(), tpnc)
	return err
}

// SetProductActive flips the active flag. Products the feed stops returning
// are marked delisted; their history stays searchable.
func (s *Store) SetProductActive(tpnc string, active bool) error {
	_, err := s.db.Exec(`UPDATE products SET active = ? WHERE tpnc = ?`, active, tpnc)
	return err
}

// InsertPrice appends a price row unless it matches the product's latest
// recorded row on every price field. Storing only changes keeps the history
// compact; the reconstruction layer fills the flat stretches back in. Returns
// whether a row was written.
func (s *Store) InsertPrice(rec models.PriceRecord) (bool, error) {
	latest, err := s.LatestPrice(rec.TPNC)
	if err != nil {
		return false, err
	}
	if latest != nil && samePrice(*latest, rec) {
		return false, nil
	}

	_, err = s.db.Exec(`
		INSERT INTO price_history (tpnc, captured_at, actual_price, clubcard_price, is_promotion, promo_desc, qc_status, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.TPNC, rec.CapturedAt, rec.ActualPrice, rec.ClubcardPrice, rec.IsPromotion, rec.PromoDesc, rec.QCStatus, rec.RawJSON)
	if err != nil {
		return false, err
	}
	return true, nil
}

func samePrice(a, b models.PriceRecord) bool {
	return a.ActualPrice == b.ActualPrice &&
		a.ClubcardPrice == b.ClubcardPrice &&
		a.IsPromotion == b.IsPromotion &&
		a.PromoDesc == b.PromoDesc
}

func (s *Store) LatestPrice(tpnc string) (*models.PriceRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, tpnc, captured_at, actual_price, clubcard_price, is_promotion, promo_desc, qc_status, raw_json, created_at
		FROM price_history
		WHERE tpnc = ?
		ORDER BY captured_at DESC
		LIMIT 1
	`, tpnc)

	var rec models.PriceRecord
	var rawJSON sql.NullString
	err := row.Scan(&rec.ID, &rec.TPNC, &rec.CapturedAt, &rec.ActualPrice, &rec.ClubcardPrice, &rec.IsPromotion, &rec.PromoDesc, &rec.QCStatus, &rawJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.RawJSON = rawJSON.String
	return &rec, nil
}

// GetPriceHistory returns every recorded price row for a product in capture
// order. captured_at is a fixed-width ISO 8601 string, so lexicographic order
// is chronological.
func (s *Store) GetPriceHistory(tpnc string) ([]models.PriceRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, tpnc, captured_at, actual_price, clubcard_price, is_promotion, promo_desc, qc_status, raw_json, created_at
		FROM price_history
		WHERE tpnc = ?
		ORDER BY captured_at ASC
	`, tpnc)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.PriceRecord
	for rows.Next() {
		var rec models.PriceRecord
		var rawJSON sql.NullString
		if err := rows.Scan(&rec.ID, &rec.TPNC, &rec.CapturedAt, &rec.ActualPrice, &rec.ClubcardPrice, &rec.IsPromotion, &rec.PromoDesc, &rec.QCStatus, &rawJSON, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.RawJSON = rawJSON.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ObservationsFor returns a product's price history as engine observations.
func (s *Store) ObservationsFor(tpnc string) ([]series.Observation, error) {
	records, err := s.GetPriceHistory(tpnc)
	if err != nil {
		return nil, err
	}
	obs := make([]series.Observation, 0, len(records))
	for _, rec := range records {
		o := series.Observation{CapturedAt: rec.CapturedAt}
		if rec.ActualPrice.Valid {
			v := rec.ActualPrice.Float64
			o.ActualPrice = &v
		}
		if rec.ClubcardPrice.Valid {
			v := rec.ClubcardPrice.Float64
			o.ClubcardPrice = &v
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func (s *Store) CountProducts() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}

func (s *Store) CountPriceRows() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM price_history`).Scan(&n)
	return n, err
}
