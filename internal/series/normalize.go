package series

import (
	"strings"
	"time"
)

// Capture timestamps arrive second-precision after the fraction is cut.
// The space-separated form shows up in rows written by SQLite itself.
var captureLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseCaptureTime parses a feed timestamp in loc. Any sub-second fraction
// (and whatever trails it) is cut before parsing; producers emit variable
// precision and the engine only needs second resolution.
func ParseCaptureTime(ts string, loc *time.Location) (time.Time, error) {
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		ts = ts[:i]
	}
	ts = strings.TrimSpace(ts)
	var firstErr error
	for _, layout := range captureLayouts {
		t, err := time.ParseInLocation(layout, ts, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Normalize reduces raw observations to at most one sample per calendar day.
// Days follow loc's boundaries. When several observations land on the same
// day the one with the latest capture time wins, regardless of input order.
// A record with an unparsable timestamp, or with neither price set, is
// skipped; one bad record never voids the batch.
func Normalize(obs []Observation, loc *time.Location) map[time.Time]DaySample {
	samples := make(map[time.Time]DaySample, len(obs))
	capturedAt := make(map[time.Time]time.Time, len(obs))

	for _, o := range obs {
		if o.ActualPrice == nil && o.ClubcardPrice == nil {
			continue
		}
		t, err := ParseCaptureTime(o.CapturedAt, loc)
		if err != nil {
			continue
		}
		day := Day(t, loc)
		if prev, ok := capturedAt[day]; ok && !t.After(prev) {
			continue
		}
		capturedAt[day] = t
		samples[day] = DaySample{
			Day:           day,
			ActualPrice:   o.ActualPrice,
			ClubcardPrice: o.ClubcardPrice,
		}
	}
	return samples
}
