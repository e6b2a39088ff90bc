package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

func completedVisit(covers int, total, tip string, seated time.Time, turnTime time.Duration) domain.Visit {
	firstServed := seated.Add(10 * time.Minute)
	cleared := seated.Add(turnTime)
	totalDec := decimal.RequireFromString(total)
	tipDec := decimal.RequireFromString(tip)
	tipPct := tipDec.Div(totalDec)
	return domain.Visit{
		ActualCovers: covers,
		Milestones: domain.Milestones{
			Seated:      seated,
			FirstServed: &firstServed,
			Cleared:     &cleared,
		},
		Money:    domain.Money{Total: totalDec, Tip: tipDec, TipPct: tipPct},
		Duration: &turnTime,
	}
}

func TestComputeWaiterMetrics(t *testing.T) {
	restaurantID, waiterID := domain.NewID(), domain.NewID()
	seated := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	visits := []domain.Visit{
		completedVisit(2, "100.00", "20.00", seated, 60*time.Minute),
		completedVisit(4, "200.00", "30.00", seated, 90*time.Minute),
	}

	wm := computeWaiterMetrics(restaurantID, waiterID, store.PeriodDaily, seated, visits)

	if wm.Visits != 2 {
		t.Fatalf("expected 2 visits, got %d", wm.Visits)
	}
	if wm.Covers != 6 {
		t.Fatalf("expected 6 covers, got %d", wm.Covers)
	}
	if !wm.Tips.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("expected tips 50.00, got %s", wm.Tips.String())
	}
	wantAvgCheck := decimal.RequireFromString("150.00")
	if !wm.AvgCheck.Equal(wantAvgCheck) {
		t.Fatalf("expected avg check %s, got %s", wantAvgCheck.String(), wm.AvgCheck.String())
	}
	wantAvgTurn := (60.0*60 + 90.0*60) / 2
	if math.Abs(wm.AvgTurnTimeSeconds-wantAvgTurn) > 1e-6 {
		t.Fatalf("expected avg turn time %f seconds, got %f", wantAvgTurn, wm.AvgTurnTimeSeconds)
	}
}

func TestComputeWaiterMetricsEmpty(t *testing.T) {
	wm := computeWaiterMetrics(domain.NewID(), domain.NewID(), store.PeriodDaily, time.Now().Add(-24*time.Hour), nil)
	if wm.Visits != 0 {
		t.Fatalf("expected 0 visits, got %d", wm.Visits)
	}
	if !wm.AvgCheck.IsZero() {
		t.Fatalf("expected zero avg check for no visits, got %s", wm.AvgCheck.String())
	}
	if wm.AvgTurnTimeSeconds != 0 {
		t.Fatalf("expected zero avg turn time, got %f", wm.AvgTurnTimeSeconds)
	}
}

func TestComputeRestaurantMetricsPeakOccupancy(t *testing.T) {
	restaurantID := domain.NewID()
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	// Two visits seated concurrently (both open at once), then both clear.
	v1 := completedVisit(2, "50.00", "10.00", base, 60*time.Minute)
	v2 := completedVisit(4, "80.00", "15.00", base, 60*time.Minute)

	rm := computeRestaurantMetrics(restaurantID, store.PeriodDaily, base, []domain.Visit{v1, v2}, 2)

	if rm.Parties != 2 {
		t.Fatalf("expected 2 parties, got %d", rm.Parties)
	}
	if rm.Covers != 6 {
		t.Fatalf("expected 6 covers, got %d", rm.Covers)
	}
	if rm.PeakOccupancy != 2 {
		t.Fatalf("expected peak occupancy 2 for two concurrently-open visits, got %d", rm.PeakOccupancy)
	}
	wantRevenue := decimal.RequireFromString("130.00")
	if !rm.Revenue.Equal(wantRevenue) {
		t.Fatalf("expected revenue %s, got %s", wantRevenue.String(), rm.Revenue.String())
	}
	if rm.CoversPerWaiter != 3 {
		t.Fatalf("expected 3 covers per waiter, got %f", rm.CoversPerWaiter)
	}
}
