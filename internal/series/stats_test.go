package series

import "testing"

func TestStats(t *testing.T) {
	tests := []struct {
		name string
		s    ProductSeries
		want DerivedStats
	}{
		{
			name: "rise across a gap",
			s: ProductSeries{
				{Day: day(2024, 3, 1), ActualPrice: fp(100)},
				{Day: day(2024, 3, 2)},
				{Day: day(2024, 3, 3), ActualPrice: fp(120)},
			},
			want: DerivedStats{
				Min: 100, Max: 120, Avg: 110,
				CurrentKnown: 120, TrendAbsolute: 20, TrendPercent: "20.0",
			},
		},
		{
			name: "price drop yields negative trend",
			s: ProductSeries{
				{Day: day(2024, 3, 1), ActualPrice: fp(120)},
				{Day: day(2024, 3, 2), ActualPrice: fp(100)},
			},
			want: DerivedStats{
				Min: 100, Max: 120, Avg: 110,
				CurrentKnown: 100, TrendAbsolute: -20, TrendPercent: "-16.7",
			},
		},
		{
			name: "current is last known, not last day",
			s: ProductSeries{
				{Day: day(2024, 3, 1), ActualPrice: fp(100)},
				{Day: day(2024, 3, 2), ActualPrice: fp(105)},
				{Day: day(2024, 3, 3)},
				{Day: day(2024, 3, 4)},
			},
			want: DerivedStats{
				Min: 100, Max: 105, Avg: 103,
				CurrentKnown: 105, TrendAbsolute: 5, TrendPercent: "5.0",
			},
		},
		{
			name: "average rounds to whole currency",
			s: ProductSeries{
				{Day: day(2024, 3, 1), ActualPrice: fp(100)},
				{Day: day(2024, 3, 2), ActualPrice: fp(105)},
			},
			want: DerivedStats{
				Min: 100, Max: 105, Avg: 103,
				CurrentKnown: 105, TrendAbsolute: 5, TrendPercent: "5.0",
			},
		},
		{
			name: "zero first price never divides",
			s: ProductSeries{
				{Day: day(2024, 3, 1), ActualPrice: fp(0)},
				{Day: day(2024, 3, 2), ActualPrice: fp(50)},
			},
			want: DerivedStats{
				Min: 0, Max: 50, Avg: 25,
				CurrentKnown: 50, TrendAbsolute: 50, TrendPercent: "0.0",
			},
		},
		{
			name: "clubcard-only days carry no actual price",
			s: ProductSeries{
				{Day: day(2024, 3, 1), ClubcardPrice: fp(80)},
				{Day: day(2024, 3, 2), ActualPrice: fp(100)},
			},
			want: DerivedStats{
				Min: 100, Max: 100, Avg: 100,
				CurrentKnown: 100, TrendAbsolute: 0, TrendPercent: "0.0",
			},
		},
		{
			name: "empty series is the no-data state",
			s:    nil,
			want: DerivedStats{TrendPercent: "0.0"},
		},
		{
			name: "all-gap series is the no-data state",
			s: ProductSeries{
				{Day: day(2024, 3, 1)},
				{Day: day(2024, 3, 2)},
			},
			want: DerivedStats{TrendPercent: "0.0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stats(tt.s)
			if got != tt.want {
				t.Errorf("Stats() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestApplyLive(t *testing.T) {
	base := DerivedStats{
		Min: 100, Max: 120, Avg: 110,
		CurrentKnown: 100, TrendAbsolute: 0, TrendPercent: "0.0",
	}
	tests := []struct {
		name        string
		live        float64
		wantCurrent float64
		wantApplied bool
	}{
		{name: "positive live price overrides current", live: 90, wantCurrent: 90, wantApplied: true},
		{name: "zero means no override", live: 0, wantCurrent: 100},
		{name: "negative means no override", live: -1, wantCurrent: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyLive(base, tt.live)
			if got.Current != tt.wantCurrent {
				t.Errorf("Current = %v, want %v", got.Current, tt.wantCurrent)
			}
			if got.LiveApplied != tt.wantApplied {
				t.Errorf("LiveApplied = %v, want %v", got.LiveApplied, tt.wantApplied)
			}
			// History stays anchored regardless of the override.
			if got.Min != base.Min || got.Max != base.Max || got.Avg != base.Avg ||
				got.TrendAbsolute != base.TrendAbsolute || got.TrendPercent != base.TrendPercent {
				t.Errorf("ApplyLive() disturbed historical stats: %+v", got)
			}
		})
	}
}

func TestApplyLiveDoesNotTouchSeries(t *testing.T) {
	s := ProductSeries{
		{Day: day(2024, 3, 1), ActualPrice: fp(100)},
	}
	stats := Stats(s)
	_ = ApplyLive(stats, 90)
	if *s[0].ActualPrice != 100 {
		t.Errorf("series mutated by ApplyLive: %+v", s[0])
	}
}

func TestStatsIgnoresGapDays(t *testing.T) {
	// Gaps must not drag the minimum to zero.
	s := ProductSeries{
		{Day: day(2024, 3, 1), ActualPrice: fp(200)},
		{Day: day(2024, 3, 2)},
		{Day: day(2024, 3, 3), ActualPrice: fp(210)},
	}
	got := Stats(s)
	if got.Min != 200 {
		t.Errorf("Min = %v, want 200 (gap treated as value)", got.Min)
	}
}
