package series

// PayloadDay is one charted day. Gap days keep explicit JSON nulls so the
// chart breaks the line instead of drawing through them.
type PayloadDay struct {
	Day           string   `json:"day"`
	ActualPrice   *float64 `json:"actual_price"`
	ClubcardPrice *float64 `json:"clubcard_price"`
}

type PayloadStats struct {
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Avg           float64 `json:"avg"`
	Current       float64 `json:"current"`
	Live          bool    `json:"live"`
	TrendAbsolute float64 `json:"trend_absolute"`
	TrendPercent  string  `json:"trend_percent"`
}

// Payload is the chart-and-stat-cards document consumers render from.
type Payload struct {
	Series []PayloadDay `json:"series"`
	Stats  PayloadStats `json:"stats"`
}

// BuildPayload shapes an aligned series and its display stats for consumers.
// The series field is always an array, never JSON null, so empty history
// renders as a no-data state rather than a client error.
func BuildPayload(s ProductSeries, d DisplayStats) Payload {
	days := make([]PayloadDay, 0, len(s))
	for _, sample := range s {
		days = append(days, PayloadDay{
			Day:           sample.Day.Format("2006-01-02"),
			ActualPrice:   sample.ActualPrice,
			ClubcardPrice: sample.ClubcardPrice,
		})
	}
	return Payload{
		Series: days,
		Stats: PayloadStats{
			Min:           d.Min,
			Max:           d.Max,
			Avg:           d.Avg,
			Current:       d.Current,
			Live:          d.LiveApplied,
			TrendAbsolute: d.TrendAbsolute,
			TrendPercent:  d.TrendPercent,
		},
	}
}
