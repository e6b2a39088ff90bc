package forecast

import (
	"testing"
	"time"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

func visitAt(t time.Time, partySize int) domain.Visit {
	return domain.Visit{PartySize: partySize, Milestones: domain.Milestones{Seated: t}}
}

func TestBuildWeekSummaryBucketsByDayAndHour(t *testing.T) {
	targetWeekStart := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC) // a Monday
	lastWeekMonday := targetWeekStart.AddDate(0, 0, -7)

	visits := []domain.Visit{
		visitAt(lastWeekMonday.Add(19*time.Hour), 4),
		visitAt(lastWeekMonday.Add(19*time.Hour), 2),
		visitAt(lastWeekMonday.Add(12*time.Hour), 3), // different hour, same day
	}

	summary := BuildWeekSummary(visits, targetWeekStart)
	dayOfWeek := int(lastWeekMonday.Weekday())

	f, ok := summary.DailyForecast[dayOfWeek]
	if !ok {
		t.Fatalf("expected a forecast entry for day %d", dayOfWeek)
	}
	if f.Baseline <= 0 {
		t.Fatalf("expected a positive baseline for a day with historical visits, got %f", f.Baseline)
	}

	otherDay := (dayOfWeek + 1) % 7
	if summary.DailyForecast[otherDay].Baseline != 0 {
		t.Fatalf("expected zero baseline for a day with no historical visits, got %f",
			summary.DailyForecast[otherDay].Baseline)
	}
}

func TestBuildWeekSummaryIgnoresVisitsOutsideLookback(t *testing.T) {
	targetWeekStart := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	tooOld := targetWeekStart.AddDate(0, 0, -7*(MaxLookbackWeeks+2))
	future := targetWeekStart.AddDate(0, 0, 1)

	visits := []domain.Visit{
		visitAt(tooOld, 10),
		visitAt(future, 10),
	}

	summary := BuildWeekSummary(visits, targetWeekStart)
	for day, f := range summary.DailyForecast {
		if f.Baseline != 0 {
			t.Fatalf("expected all buckets empty when every visit falls outside the lookback window, day %d got baseline %f",
				day, f.Baseline)
		}
	}
}

func TestWeeksBetween(t *testing.T) {
	target := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want int
	}{
		{"one week ago", target.AddDate(0, 0, -7), 1},
		{"two weeks ago", target.AddDate(0, 0, -14), 2},
		{"in the future", target.AddDate(0, 0, 1), 0},
	}
	for _, tc := range tests {
		if got := weeksBetween(tc.t, target); got != tc.want {
			t.Errorf("%s: weeksBetween() = %d, want %d", tc.name, got, tc.want)
		}
	}
}
