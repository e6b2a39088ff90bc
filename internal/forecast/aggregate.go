package forecast

import (
	"time"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

// WeekSummary is the per-day forecast output for one target week plus
// the trend classification derived from recent weeks' accuracy (§4.8).
type WeekSummary struct {
	DailyForecast map[int]Forecast // day-of-week (0-6) -> aggregated day forecast
	Trend         Trend
}

// BuildWeekSummary buckets historicalVisits by (day-of-week, hour),
// forecasts each day of targetWeekStart, and classifies the trend by
// comparing weekly MAPE computed from the tail of history against its
// head, per §4.8.
func BuildWeekSummary(historicalVisits []domain.Visit, targetWeekStart time.Time) WeekSummary {
	byDayHour := make(map[Bucket][]HistoricalSample)
	weeklyTotals := make(map[int]float64) // weeksAgo -> total covers

	for _, v := range historicalVisits {
		weeksAgo := weeksBetween(v.Milestones.Seated, targetWeekStart)
		if weeksAgo < 1 || weeksAgo > MaxLookbackWeeks {
			continue
		}
		b := Bucket{DayOfWeek: int(v.Milestones.Seated.Weekday()), Hour: v.Milestones.Seated.Hour()}
		byDayHour[b] = append(byDayHour[b], HistoricalSample{WeeksAgo: weeksAgo, Covers: float64(v.PartySize)})
		weeklyTotals[weeksAgo] += float64(v.PartySize)
	}

	daily := make(map[int]Forecast)
	for day := 0; day < 7; day++ {
		var merged []HistoricalSample
		for hour := 0; hour < 24; hour++ {
			merged = append(merged, byDayHour[Bucket{DayOfWeek: day, Hour: hour}]...)
		}
		daily[day] = ForecastBucket(Bucket{DayOfWeek: day}, mergeByWeek(merged))
	}

	trend := classifyTrendFromWeeklyTotals(weeklyTotals)
	return WeekSummary{DailyForecast: daily, Trend: trend}
}

// mergeByWeek collapses multiple hourly samples from the same week into
// one sample, so ForecastBucket's weighting operates per week, not per
// hourly observation.
func mergeByWeek(samples []HistoricalSample) []HistoricalSample {
	byWeek := make(map[int]float64)
	for _, s := range samples {
		byWeek[s.WeeksAgo] += s.Covers
	}
	out := make([]HistoricalSample, 0, len(byWeek))
	for weeksAgo, covers := range byWeek {
		out = append(out, HistoricalSample{WeeksAgo: weeksAgo, Covers: covers})
	}
	return out
}

func weeksBetween(t, targetWeekStart time.Time) int {
	d := targetWeekStart.Sub(t)
	if d <= 0 {
		return 0
	}
	week := 7 * 24 * time.Hour
	return int((d + week - 1) / week)
}

// classifyTrendFromWeeklyTotals treats each week's total-vs-baseline
// deviation as a proxy MAPE sample and classifies the resulting
// trajectory, per §4.8's "comparing first and last halves".
func classifyTrendFromWeeklyTotals(weeklyTotals map[int]float64) Trend {
	if len(weeklyTotals) < 2 {
		return TrendStable
	}
	var mean float64
	for _, v := range weeklyTotals {
		mean += v
	}
	mean /= float64(len(weeklyTotals))
	if mean == 0 {
		return TrendStable
	}

	deviations := make([]float64, 0, len(weeklyTotals))
	for weeksAgo := MaxLookbackWeeks; weeksAgo >= 1; weeksAgo-- {
		total, ok := weeklyTotals[weeksAgo]
		if !ok {
			continue
		}
		deviations = append(deviations, absPct(total, mean))
	}
	return ClassifyTrend(deviations)
}

func absPct(value, mean float64) float64 {
	d := (value - mean) / mean
	if d < 0 {
		d = -d
	}
	return d
}
