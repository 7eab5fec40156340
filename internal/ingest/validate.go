package ingest

import (
	"pricewatch/internal/models"
)

// Quality flags recorded on each price row, stored as a bitmask in
// qc_status so a row can carry several problems at once. Flagged rows are
// kept; they are data, just suspicious data.
const (
	QCActualMissing = 1 << iota
	QCActualNegative
	QCActualImplausible
	QCClubcardNegative
	QCClubcardNotBelowActual
)

// maxPlausiblePrice is in forints. No grocery item costs this much; rows
// above it usually mean the feed glitched.
const maxPlausiblePrice = 5_000_000

func ValidatePrice(rec models.PriceRecord) int {
	var status int

	if !rec.ActualPrice.Valid {
		status |= QCActualMissing
	} else {
		if rec.ActualPrice.Float64 < 0 {
			status |= QCActualNegative
		}
		if rec.ActualPrice.Float64 > maxPlausiblePrice {
			status |= QCActualImplausible
		}
	}

	if rec.ClubcardPrice.Valid {
		if rec.ClubcardPrice.Float64 < 0 {
			status |= QCClubcardNegative
		}
		if rec.ActualPrice.Valid && rec.ClubcardPrice.Float64 >= rec.ActualPrice.Float64 {
			status |= QCClubcardNotBelowActual
		}
	}

	return status
}

// QCNames expands a qc_status bitmask into flag names for logs.
func QCNames(status int) []string {
	var names []string
	for _, f := range []struct {
		bit  int
		name string
	}{
		{QCActualMissing, "actual_missing"},
		{QCActualNegative, "actual_negative"},
		{QCActualImplausible, "actual_implausible"},
		{QCClubcardNegative, "clubcard_negative"},
		{QCClubcardNotBelowActual, "clubcard_not_below_actual"},
	} {
		if status&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return names
}
