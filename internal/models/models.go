package models

import (
	"database/sql"
	"time"
)

type Product struct {
	TPNC            string
	Name            string
	Brand           sql.NullString
	Description     sql.NullString
	UnitOfMeasure   sql.NullString
	UnitPrice       sql.NullFloat64
	ImageURL        sql.NullString
	ProductURL      sql.NullString
	FirstSeenAt     time.Time
	LastScrapedAt   sql.NullTime
	LastFullScrape  sql.NullTime
	Active          bool
}

type PriceRecord struct {
	ID            int64
	TPNC          string
	CapturedAt    string // ISO 8601 with fractional seconds, as captured
	ActualPrice   sql.NullFloat64
	ClubcardPrice sql.NullFloat64
	IsPromotion   bool
	PromoDesc     sql.NullString
	QCStatus      int
	RawJSON       string
	CreatedAt     time.Time
}
