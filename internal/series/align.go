package series

import "time"

// Align expands normalized day samples onto a contiguous calendar grid from
// the earliest observed day through today inclusive. Days without a sample
// are emitted with nil prices; nothing is carried forward or interpolated,
// and no day before the first observation is ever emitted.
//
// today is injected rather than read from the clock so the result is a pure
// function of its inputs. Anchoring the range at today (not at the latest
// observation) makes a stalled feed visible as a growing trailing gap.
func Align(samples map[time.Time]DaySample, today time.Time) ProductSeries {
	if len(samples) == 0 {
		return nil
	}

	var first time.Time
	for day := range samples {
		if first.IsZero() || day.Before(first) {
			first = day
		}
	}

	last := canonicalDay(today)
	if last.Before(first) {
		// Evaluation clock behind the first capture; nothing to show yet.
		return nil
	}

	out := make(ProductSeries, 0, int(last.Sub(first).Hours()/24)+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if s, ok := samples[d]; ok {
			out = append(out, s)
		} else {
			out = append(out, DaySample{Day: d})
		}
	}
	return out
}

// canonicalDay re-anchors an arbitrary time to the UTC midnight of its own
// calendar date, so callers may pass either a Day() value or a local time.
func canonicalDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
