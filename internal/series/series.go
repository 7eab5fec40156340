// Package series reconstructs a product's daily price history from the
// irregular observations the scraper captures, and derives the summary
// statistics shown on product pages.
//
// The pipeline is pure: raw observations are reduced to at most one sample
// per calendar day, the samples are expanded onto a contiguous day grid
// ending at an injected "today", and statistics are computed from the known
// values only. Days without an observation stay in the grid with nil prices
// so charts render a visible gap instead of a fabricated line.
package series

import "time"

// Observation is a raw price reading as it comes off the feed. CapturedAt is
// the original timestamp string (ISO 8601, possibly with fractional seconds);
// a nil price means the feed had no value for that field.
type Observation struct {
	CapturedAt    string
	ActualPrice   *float64
	ClubcardPrice *float64
}

// DaySample holds one calendar day's resolved prices after deduplication.
// Day is the UTC midnight that names the observer-local calendar day.
type DaySample struct {
	Day           time.Time
	ActualPrice   *float64
	ClubcardPrice *float64
}

// Known reports whether the sample carries any observed price.
func (s DaySample) Known() bool {
	return s.ActualPrice != nil || s.ClubcardPrice != nil
}

// ProductSeries is a contiguous run of day samples, strictly increasing by
// day, from the first observed day through "today" inclusive. Unobserved
// days are present with nil prices.
type ProductSeries []DaySample

// DerivedStats summarises the known actual prices in a ProductSeries. All
// fields are zero (and TrendPercent is "0.0") when the series holds no known
// prices; that is the defined no-data state, not an error.
type DerivedStats struct {
	Min           float64
	Max           float64
	Avg           float64
	CurrentKnown  float64
	TrendAbsolute float64
	TrendPercent  string
}

// DisplayStats is DerivedStats with the current price possibly replaced by a
// live reading. Only Current differs from history; Min/Max/Avg/Trend stay
// anchored to the series.
type DisplayStats struct {
	Min           float64
	Max           float64
	Avg           float64
	Current       float64
	LiveApplied   bool
	TrendAbsolute float64
	TrendPercent  string
}

// Day returns the UTC midnight naming t's calendar day in loc. Using a UTC
// anchor keeps day arithmetic free of DST transitions while the day boundary
// itself follows the observer's timezone.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Reconstruct runs the full pipeline over raw observations: normalize to day
// samples, align onto the day grid ending at today's calendar day in loc, and
// derive statistics. It never fails; unusable input degrades to an empty
// series and the no-data stats.
func Reconstruct(obs []Observation, loc *time.Location, today time.Time) (ProductSeries, DerivedStats) {
	s := Align(Normalize(obs, loc), Day(today, loc))
	return s, Stats(s)
}
