package api

import (
	"database/sql"
	"time"

	"pricewatch/internal/series"
	"pricewatch/internal/store"
)

// IndexData renders the search page.
type IndexData struct {
	Query    string
	Searched bool
	Results  []ProductRow
	Totals   CatalogTotals
	LastRun  *store.ScrapeRun
}

// CatalogTotals summarise the tracker's footprint for the page footer.
type CatalogTotals struct {
	Products  int
	PriceRows int
}

// ProductRow is one search result with the product's latest recorded prices.
type ProductRow struct {
	TPNC          string
	Name          string
	Brand         string
	ActualPrice   *float64
	ClubcardPrice *float64
	IsPromotion   bool
	CapturedAt    string
}

// ProductPageData renders a product detail page.
type ProductPageData struct {
	TPNC          string
	Name          string
	Brand         string
	Description   string
	ImageURL      string
	ProductURL    string
	UnitPrice     *float64
	UnitOfMeasure string
	Active        bool
	LastScraped   string

	HasData    bool
	Payload    series.Payload
	TrendClass string
	Changes    []PriceChangeRow
}

// PriceChangeRow is one recorded price change, newest first on the page.
type PriceChangeRow struct {
	CapturedAt    string
	ActualPrice   *float64
	ClubcardPrice *float64
	IsPromotion   bool
	PromoDesc     string
}

// CurrentResponse is the /api/products/{tpnc}/current document. Pointer
// fields keep explicit JSON nulls for prices the feed did not carry.
type CurrentResponse struct {
	TPNC          string   `json:"tpnc"`
	CapturedAt    string   `json:"captured_at"`
	ActualPrice   *float64 `json:"actual_price"`
	ClubcardPrice *float64 `json:"clubcard_price"`
	IsPromotion   bool     `json:"is_promotion"`
	PromoDesc     *string  `json:"promo_desc"`
}

// SearchResult is one /api/search row.
type SearchResult struct {
	TPNC       string  `json:"tpnc"`
	Name       string  `json:"name"`
	Brand      *string `json:"brand"`
	ImageURL   *string `json:"image_url"`
	ProductURL *string `json:"product_url"`
	Active     bool    `json:"active"`
}

// HealthStatus is the health check response.
type HealthStatus struct {
	Status    string     `json:"status"`
	Products  int        `json:"products"`
	PriceRows int        `json:"price_rows"`
	LastRun   *RunHealth `json:"last_run,omitempty"`
	Errors    []string   `json:"errors,omitempty"`
}

// RunHealth reports on the most recent scrape run.
type RunHealth struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	TriggeredBy string     `json:"triggered_by"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Stale       bool       `json:"stale"`
}

// trendClass maps the trend direction to a CSS class. Falling prices are
// good news for the shopper.
func trendClass(trendAbsolute float64) string {
	switch {
	case trendAbsolute < 0:
		return "trend-good"
	case trendAbsolute > 0:
		return "trend-bad"
	default:
		return "trend-flat"
	}
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
