package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

// PeriodType is a rollup bucket granularity, per §4.12.
type PeriodType string

const (
	PeriodShift   PeriodType = "shift"
	PeriodHourly  PeriodType = "hourly"
	PeriodDaily   PeriodType = "daily"
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
)

// WaiterMetrics is one rolled-up row for a waiter over a period.
type WaiterMetrics struct {
	RestaurantID       domain.ID
	WaiterID           domain.ID
	PeriodType         PeriodType
	PeriodStart        time.Time
	Visits             int
	Covers             int
	Tips               decimal.Decimal
	AvgTipPct          float64
	AvgCheck           decimal.Decimal
	AvgTurnTimeSeconds float64
}

// UpsertWaiterMetrics replaces the row for (waiter, period_type,
// period_start), per §4.12's same-key-upsert idempotence.
func (s *Store) UpsertWaiterMetrics(ctx context.Context, m WaiterMetrics) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO waiter_metrics (restaurant_id, waiter_id, period_type, period_start, visits, covers,
			tips, avg_tip_pct, avg_check, avg_turn_time_seconds, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(waiter_id, period_type, period_start) DO UPDATE SET
			visits = excluded.visits, covers = excluded.covers, tips = excluded.tips,
			avg_tip_pct = excluded.avg_tip_pct, avg_check = excluded.avg_check,
			avg_turn_time_seconds = excluded.avg_turn_time_seconds, updated_at = excluded.updated_at`,
		m.RestaurantID.String(), m.WaiterID.String(), string(m.PeriodType), m.PeriodStart.Format(timeLayout),
		m.Visits, m.Covers, m.Tips.String(), m.AvgTipPct, m.AvgCheck.String(), m.AvgTurnTimeSeconds,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert waiter metrics: %w", err)
	}
	return nil
}

// RestaurantMetrics is one rolled-up row for a restaurant over a period.
type RestaurantMetrics struct {
	RestaurantID     domain.ID
	PeriodType       PeriodType
	PeriodStart      time.Time
	Parties          int
	Covers           int
	PeakOccupancy    int
	Revenue          decimal.Decimal
	AvgWaitSeconds   float64
	CoversPerWaiter  float64
}

// UpsertRestaurantMetrics replaces the row for (restaurant, period_type,
// period_start).
func (s *Store) UpsertRestaurantMetrics(ctx context.Context, m RestaurantMetrics) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO restaurant_metrics (restaurant_id, period_type, period_start, parties, covers,
			peak_occupancy, revenue, avg_wait_seconds, covers_per_waiter, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(restaurant_id, period_type, period_start) DO UPDATE SET
			parties = excluded.parties, covers = excluded.covers, peak_occupancy = excluded.peak_occupancy,
			revenue = excluded.revenue, avg_wait_seconds = excluded.avg_wait_seconds,
			covers_per_waiter = excluded.covers_per_waiter, updated_at = excluded.updated_at`,
		m.RestaurantID.String(), string(m.PeriodType), m.PeriodStart.Format(timeLayout), m.Parties, m.Covers,
		m.PeakOccupancy, m.Revenue.String(), m.AvgWaitSeconds, m.CoversPerWaiter, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert restaurant metrics: %w", err)
	}
	return nil
}

// MenuItemMetrics is one rolled-up row for a menu item over a period.
type MenuItemMetrics struct {
	RestaurantID         domain.ID
	MenuItem             string
	PeriodType           PeriodType
	PeriodStart          time.Time
	Orders               int
	Revenue              decimal.Decimal
	HourlyDistribution   map[int]int // hour-of-day (0-23) -> order count
}

// UpsertMenuItemMetrics replaces the row for (restaurant, menu_item,
// period_type, period_start).
func (s *Store) UpsertMenuItemMetrics(ctx context.Context, m MenuItemMetrics) error {
	dist, err := json.Marshal(m.HourlyDistribution)
	if err != nil {
		return fmt.Errorf("marshal hourly distribution: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO menu_item_metrics (restaurant_id, menu_item, period_type, period_start, orders,
			revenue, hourly_distribution_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(restaurant_id, menu_item, period_type, period_start) DO UPDATE SET
			orders = excluded.orders, revenue = excluded.revenue,
			hourly_distribution_json = excluded.hourly_distribution_json, updated_at = excluded.updated_at`,
		m.RestaurantID.String(), m.MenuItem, string(m.PeriodType), m.PeriodStart.Format(timeLayout),
		m.Orders, m.Revenue.String(), string(dist), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert menu item metrics: %w", err)
	}
	return nil
}

// VisitsInWindow returns every visit seated within [from, to) for a
// restaurant, the basic aggregation input for C12 rollups and C8's
// historical demand buckets.
func (s *Store) VisitsInWindow(ctx context.Context, restaurantID domain.ID, from, to time.Time) ([]domain.Visit, error) {
	rows, err := s.db.QueryContext(ctx, visitSelectSQL+
		` WHERE restaurant_id = ? AND seated_at >= ? AND seated_at < ? ORDER BY seated_at`,
		restaurantID.String(), from.Format(timeLayout), to.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query visits in window: %w", err)
	}
	defer rows.Close()

	var out []domain.Visit
	for rows.Next() {
		var (
			id, restID, tableID, waiterID      string
			originalWaiter, waitlistEntry      sql.NullString
			seated, created                    string
			firstServed, payment, cleared      sql.NullString
			subtotal, tax, total, tip, tipPct  string
			durationSeconds                    sql.NullInt64
			v                                  domain.Visit
		)
		if err := rows.Scan(&id, &restID, &tableID, &waiterID, &originalWaiter, &waitlistEntry,
			&v.PartySize, &v.ActualCovers, &seated, &firstServed, &payment, &cleared,
			&subtotal, &tax, &total, &tip, &tipPct, &durationSeconds, &created); err != nil {
			return nil, fmt.Errorf("scan visit in window: %w", err)
		}
		assembled, err := assembleVisit(&v, id, restID, tableID, waiterID, originalWaiter, waitlistEntry,
			seated, firstServed, payment, cleared, subtotal, tax, total, tip, tipPct, durationSeconds, created)
		if err != nil {
			return nil, err
		}
		out = append(out, *assembled)
	}
	return out, rows.Err()
}
