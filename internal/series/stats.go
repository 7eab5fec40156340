package series

import (
	"fmt"
	"math"
)

// Stats derives min/max/average/trend from the known actual prices in s.
// Gap days are skipped, not treated as zero. An empty series, or one with no
// known prices at all, yields the zeroed no-data stats.
func Stats(s ProductSeries) DerivedStats {
	known := make([]float64, 0, len(s))
	for _, day := range s {
		if day.ActualPrice != nil {
			known = append(known, *day.ActualPrice)
		}
	}
	if len(known) == 0 {
		return DerivedStats{TrendPercent: "0.0"}
	}

	min, max, sum := known[0], known[0], 0.0
	for _, v := range known {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}

	first := known[0]
	current := known[len(known)-1]
	trend := current - first

	// Division by a zero first price is a defined degenerate case, not a
	// failure; it renders as a flat trend.
	trendPercent := "0.0"
	if first != 0 {
		trendPercent = fmt.Sprintf("%.1f", trend/first*100)
	}

	return DerivedStats{
		Min:           min,
		Max:           max,
		Avg:           math.Round(sum / float64(len(known))),
		CurrentKnown:  current,
		TrendAbsolute: trend,
		TrendPercent:  trendPercent,
	}
}

// ApplyLive merges an out-of-band shelf price into the display payload. A
// positive live value replaces only the current price; min/max/avg/trend stay
// anchored to history, and the series itself is never touched. A zero or
// negative live value means no override is available.
func ApplyLive(d DerivedStats, live float64) DisplayStats {
	out := DisplayStats{
		Min:           d.Min,
		Max:           d.Max,
		Avg:           d.Avg,
		Current:       d.CurrentKnown,
		TrendAbsolute: d.TrendAbsolute,
		TrendPercent:  d.TrendPercent,
	}
	if live > 0 {
		out.Current = live
		out.LiveApplied = true
	}
	return out
}
