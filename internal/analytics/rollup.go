/*
Package analytics implements C12, the Analytics Rollups: batch
derivations over Visits keyed by (period_type, period_start), written
via the store's same-key-upsert idempotence (§4.12). Grounded on the
teacher gateway's observability/metrics.go for prometheus client_golang
gauge/counter wiring, generalized from request-latency metrics to
restaurant operations metrics.
*/
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

const component = "analytics"

// Metrics holds the prometheus collectors this package exposes,
// mirroring observability/metrics.go's single-struct-of-collectors shape.
type Metrics struct {
	rollupsComputed *prometheus.CounterVec
	rollupDuration  *prometheus.HistogramVec
}

// NewMetrics registers and returns the rollup prometheus collectors.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		rollupsComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant_core",
			Subsystem: "analytics",
			Name:      "rollups_computed_total",
			Help:      "Count of analytics rollups computed, by period type.",
		}, []string{"period_type"}),
		rollupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "restaurant_core",
			Subsystem: "analytics",
			Name:      "rollup_duration_seconds",
			Help:      "Duration of one analytics rollup computation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"period_type"}),
	}
	registry.MustRegister(m.rollupsComputed, m.rollupDuration)
	return m
}

// Roller computes and persists C12 rollups.
type Roller struct {
	store   *store.Store
	metrics *Metrics
}

// New builds a Roller.
func New(st *store.Store, metrics *Metrics) *Roller {
	return &Roller{store: st, metrics: metrics}
}

// RollWaiterAndRestaurant computes and upserts both waiter-level and
// restaurant-level metrics for [periodStart, periodStart+window) (§4.12).
func (r *Roller) RollWaiterAndRestaurant(ctx context.Context, restaurantID domain.ID, periodType store.PeriodType, periodStart time.Time, window time.Duration) error {
	start := time.Now()
	defer func() {
		r.metrics.rollupDuration.WithLabelValues(string(periodType)).Observe(time.Since(start).Seconds())
	}()

	visits, err := r.store.VisitsInWindow(ctx, restaurantID, periodStart, periodStart.Add(window))
	if err != nil {
		return fmt.Errorf("load visits for rollup: %w", err)
	}

	byWaiter := make(map[domain.ID][]domain.Visit)
	for _, v := range visits {
		if v.Milestones.Cleared == nil {
			continue // only completed visits contribute to waiter rollups
		}
		byWaiter[v.WaiterID] = append(byWaiter[v.WaiterID], v)
	}

	for waiterID, waiterVisits := range byWaiter {
		wm := computeWaiterMetrics(restaurantID, waiterID, periodType, periodStart, waiterVisits)
		if err := r.store.UpsertWaiterMetrics(ctx, wm); err != nil {
			return fmt.Errorf("upsert waiter metrics for %s: %w", waiterID, err)
		}
	}

	rm := computeRestaurantMetrics(restaurantID, periodType, periodStart, visits, len(byWaiter))
	if err := r.store.UpsertRestaurantMetrics(ctx, rm); err != nil {
		return fmt.Errorf("upsert restaurant metrics: %w", err)
	}

	r.metrics.rollupsComputed.WithLabelValues(string(periodType)).Inc()
	return nil
}

// peakOccupancy sweeps seated/cleared events in time order to find the
// maximum number of visits simultaneously open, per §4.12. A visit with
// no Cleared time gets no closing event, so it stays open for the rest
// of the sweep.
func peakOccupancy(visits []domain.Visit) int {
	type event struct {
		at    time.Time
		delta int
	}
	events := make([]event, 0, len(visits)*2)
	for _, v := range visits {
		events = append(events, event{at: v.Milestones.Seated, delta: 1})
		if v.Milestones.Cleared != nil {
			events = append(events, event{at: *v.Milestones.Cleared, delta: -1})
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			return events[i].delta > events[j].delta // opens before closes at the same instant
		}
		return events[i].at.Before(events[j].at)
	})

	var current, peak int
	for _, e := range events {
		current += e.delta
		if current > peak {
			peak = current
		}
	}
	return peak
}

func computeWaiterMetrics(restaurantID, waiterID domain.ID, periodType store.PeriodType, periodStart time.Time, visits []domain.Visit) store.WaiterMetrics {
	var covers int
	var tips, checkTotal decimal.Decimal
	var tipPctSum float64
	var turnTimeSum float64
	turnTimeCount := 0

	for _, v := range visits {
		covers += v.ActualCovers
		tips = tips.Add(v.Money.Tip)
		checkTotal = checkTotal.Add(v.Money.Total)
		tipPct, _ := v.Money.TipPct.Float64()
		tipPctSum += tipPct
		if v.Duration != nil {
			turnTimeSum += v.Duration.Seconds()
			turnTimeCount++
		}
	}

	n := len(visits)
	var avgTipPct, avgTurnTime float64
	avgCheck := decimal.Zero
	if n > 0 {
		avgTipPct = tipPctSum / float64(n)
		avgCheck = checkTotal.Div(decimal.NewFromInt(int64(n)))
	}
	if turnTimeCount > 0 {
		avgTurnTime = turnTimeSum / float64(turnTimeCount)
	}

	return store.WaiterMetrics{
		RestaurantID:       restaurantID,
		WaiterID:           waiterID,
		PeriodType:         periodType,
		PeriodStart:        periodStart,
		Visits:             n,
		Covers:             covers,
		Tips:               tips,
		AvgTipPct:          avgTipPct,
		AvgCheck:           avgCheck,
		AvgTurnTimeSeconds: avgTurnTime,
	}
}

func computeRestaurantMetrics(restaurantID domain.ID, periodType store.PeriodType, periodStart time.Time, visits []domain.Visit, waiterCount int) store.RestaurantMetrics {
	var covers int
	var revenue decimal.Decimal
	var waitSum float64
	waitCount := 0

	for _, v := range visits {
		covers += v.ActualCovers
		revenue = revenue.Add(v.Money.Total)
		if v.Milestones.FirstServed != nil {
			waitSum += v.Milestones.FirstServed.Sub(v.Milestones.Seated).Seconds()
			waitCount++
		}
	}
	peak := peakOccupancy(visits)

	var avgWait, coversPerWaiter float64
	if waitCount > 0 {
		avgWait = waitSum / float64(waitCount)
	}
	if waiterCount > 0 {
		coversPerWaiter = float64(covers) / float64(waiterCount)
	}

	return store.RestaurantMetrics{
		RestaurantID:    restaurantID,
		PeriodType:      periodType,
		PeriodStart:     periodStart,
		Parties:         len(visits),
		Covers:          covers,
		PeakOccupancy:   peak,
		Revenue:         revenue,
		AvgWaitSeconds:  avgWait,
		CoversPerWaiter: coversPerWaiter,
	}
}
