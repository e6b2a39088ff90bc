package forecast

import (
	"math"
	"testing"
)

func TestForecastBucketEmptyReturnsZeroForecast(t *testing.T) {
	f := ForecastBucket(Bucket{DayOfWeek: 1, Hour: 18}, nil)
	if f.Baseline != 0 || f.TrendAdjusted != 0 {
		t.Fatalf("expected zero-valued forecast for no samples, got %+v", f)
	}
}

func TestForecastBucketFlatHistoryHasNoTrend(t *testing.T) {
	samples := []HistoricalSample{
		{WeeksAgo: 1, Covers: 20},
		{WeeksAgo: 2, Covers: 20},
		{WeeksAgo: 3, Covers: 20},
	}
	f := ForecastBucket(Bucket{DayOfWeek: 5, Hour: 19}, samples)
	if math.Abs(f.Baseline-20) > 1e-6 {
		t.Fatalf("expected baseline ~20 for flat history, got %f", f.Baseline)
	}
	if math.Abs(f.TrendAdjusted-f.Baseline) > 1e-6 {
		t.Fatalf("expected no trend adjustment for flat history, baseline=%f adjusted=%f", f.Baseline, f.TrendAdjusted)
	}
	if f.ConfidenceLow > f.Baseline || f.ConfidenceHigh < f.Baseline {
		t.Fatalf("expected the confidence band to straddle the baseline, got [%f, %f] around %f",
			f.ConfidenceLow, f.ConfidenceHigh, f.Baseline)
	}
}

func TestForecastBucketRisingTrendAdjustsUpward(t *testing.T) {
	// WeeksAgo descending recency: 3 weeks ago lowest, last week highest.
	samples := []HistoricalSample{
		{WeeksAgo: 3, Covers: 10},
		{WeeksAgo: 2, Covers: 20},
		{WeeksAgo: 1, Covers: 30},
	}
	f := ForecastBucket(Bucket{DayOfWeek: 5, Hour: 19}, samples)
	if f.TrendAdjusted <= f.Baseline {
		t.Fatalf("expected a rising trend to adjust the forecast upward: baseline=%f adjusted=%f",
			f.Baseline, f.TrendAdjusted)
	}
}

func TestTrendCorrectionCapped(t *testing.T) {
	samples := []HistoricalSample{
		{WeeksAgo: 2, Covers: 1},
		{WeeksAgo: 1, Covers: 1000},
	}
	mult := trendCorrection(samples)
	if mult > 1+trendCapPct+1e-9 {
		t.Fatalf("expected trend multiplier capped at %f, got %f", 1+trendCapPct, mult)
	}
}

func TestMAPE(t *testing.T) {
	obs := []DailyObservation{
		{Predicted: 100, Actual: 100},
		{Predicted: 90, Actual: 100},
		{Predicted: 110, Actual: 100},
	}
	mape := MAPE(obs)
	want := (0.0 + 0.10 + 0.10) / 3
	if math.Abs(mape-want) > 1e-9 {
		t.Fatalf("expected MAPE %f, got %f", want, mape)
	}
}

func TestRateMAPEBuckets(t *testing.T) {
	tests := []struct {
		mape float64
		want EvalRating
	}{
		{0.05, EvalExcellent},
		{0.15, EvalGood},
		{0.25, EvalFair},
		{0.50, EvalPoor},
	}
	for _, tc := range tests {
		if got := RateMAPE(tc.mape); got != tc.want {
			t.Errorf("RateMAPE(%f) = %s, want %s", tc.mape, got, tc.want)
		}
	}
}

func TestClassifyTrendImprovingAndDeclining(t *testing.T) {
	improving := ClassifyTrend([]float64{0.30, 0.28, 0.10, 0.08})
	if improving != TrendImproving {
		t.Fatalf("expected TrendImproving, got %s", improving)
	}

	declining := ClassifyTrend([]float64{0.08, 0.10, 0.28, 0.30})
	if declining != TrendDeclining {
		t.Fatalf("expected TrendDeclining, got %s", declining)
	}

	stable := ClassifyTrend([]float64{0.10, 0.11, 0.10, 0.11})
	if stable != TrendStable {
		t.Fatalf("expected TrendStable, got %s", stable)
	}
}

func TestClassifyTrendSingleValueIsStable(t *testing.T) {
	if got := ClassifyTrend([]float64{0.5}); got != TrendStable {
		t.Fatalf("expected TrendStable for a single data point, got %s", got)
	}
}
