package series

import (
	"testing"
	"time"
)

func TestDay(t *testing.T) {
	budapest, err := time.LoadLocation("Europe/Budapest")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		name string
		t    time.Time
		loc  *time.Location
		want time.Time
	}{
		{
			name: "utc afternoon",
			t:    time.Date(2024, 3, 8, 15, 30, 0, 0, time.UTC),
			loc:  time.UTC,
			want: day(2024, 3, 8),
		},
		{
			name: "late utc evening is already next day in budapest",
			t:    time.Date(2024, 3, 8, 23, 30, 0, 0, time.UTC),
			loc:  budapest,
			want: day(2024, 3, 9),
		},
		{
			name: "local midnight stays on its day",
			t:    time.Date(2024, 3, 8, 0, 0, 0, 0, budapest),
			loc:  budapest,
			want: day(2024, 3, 8),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Day(tt.t, tt.loc); !got.Equal(tt.want) {
				t.Errorf("Day(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

// Two observations three days apart, evaluated on the later day: one gap in
// the middle, stats from the two known prices only.
func TestReconstruct(t *testing.T) {
	obs := []Observation{
		{CapturedAt: "2024-03-01T08:15:22.481920", ActualPrice: fp(100)},
		{CapturedAt: "2024-03-03T08:14:51.003811", ActualPrice: fp(120), ClubcardPrice: fp(110)},
	}
	s, stats := Reconstruct(obs, time.UTC, day(2024, 3, 3))

	if len(s) != 3 {
		t.Fatalf("len(series) = %d, want 3", len(s))
	}
	if s[1].Known() {
		t.Errorf("series[1] = %+v, want gap", s[1])
	}
	want := DerivedStats{
		Min: 100, Max: 120, Avg: 110,
		CurrentKnown: 120, TrendAbsolute: 20, TrendPercent: "20.0",
	}
	if stats != want {
		t.Errorf("Stats = %+v, want %+v", stats, want)
	}
}

func TestReconstructEmptyInput(t *testing.T) {
	s, stats := Reconstruct(nil, time.UTC, day(2024, 3, 3))
	if len(s) != 0 {
		t.Errorf("series = %+v, want empty", s)
	}
	want := DerivedStats{TrendPercent: "0.0"}
	if stats != want {
		t.Errorf("Stats = %+v, want %+v", stats, want)
	}
}

func TestReconstructAllRecordsUnusable(t *testing.T) {
	obs := []Observation{
		{CapturedAt: "garbage", ActualPrice: fp(100)},
		{CapturedAt: "2024-03-01T08:00:00"}, // no prices
	}
	s, stats := Reconstruct(obs, time.UTC, day(2024, 3, 3))
	if len(s) != 0 {
		t.Errorf("series = %+v, want empty", s)
	}
	if stats.TrendPercent != "0.0" || stats.Min != 0 || stats.CurrentKnown != 0 {
		t.Errorf("Stats = %+v, want no-data state", stats)
	}
}
