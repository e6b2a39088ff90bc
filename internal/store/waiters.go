package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

// ShiftSnapshot is the live-activity view of a candidate waiter's current
// shift, used by the router's priority scoring (§4.7 step 3).
type ShiftSnapshot struct {
	ShiftID       domain.ID
	CurrentTables int // open visits currently assigned to this waiter
	Covers        int
	Tips          decimal.Decimal
	// LastActivityAt is the most recent visit-milestone timestamp
	// attributed to this waiter, for the recency penalty (§4.7 step 3).
	LastActivityAt time.Time
}

// WaiterCandidate pairs a Waiter with its current ShiftSnapshot.
type WaiterCandidate struct {
	Waiter   domain.Waiter
	Snapshot ShiftSnapshot
}

// CreateWaiter inserts a Waiter.
func (s *Store) CreateWaiter(ctx context.Context, w *domain.Waiter) error {
	if w.ID.IsNil() {
		w.ID = domain.NewID()
	}
	w.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO waiters (id, restaurant_id, name, role, tier, composite_score, section_id,
			lifetime_shifts, lifetime_covers, lifetime_tips, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID.String(), w.RestaurantID.String(), w.Name, string(w.Role), string(w.Tier), w.CompositeScore,
		nullableID(w.SectionID), w.LifetimeShifts, w.LifetimeCovers, w.LifetimeTips.String(), w.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert waiter: %w", err)
	}
	return nil
}

// GetWaiter loads a Waiter by ID.
func (s *Store) GetWaiter(ctx context.Context, id domain.ID) (*domain.Waiter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, restaurant_id, name, role, tier, composite_score, section_id,
			lifetime_shifts, lifetime_covers, lifetime_tips, created_at FROM waiters WHERE id = ?`,
		id.String())
	var (
		w                              domain.Waiter
		idStr, restID                  string
		role, tier                     string
		secID                          sql.NullString
		lifetimeTips                   string
		created                        string
	)
	if err := row.Scan(&idStr, &restID, &w.Name, &role, &tier, &w.CompositeScore, &secID,
		&w.LifetimeShifts, &w.LifetimeCovers, &lifetimeTips, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(component, "waiter not found")
		}
		return nil, fmt.Errorf("scan waiter: %w", err)
	}
	var err error
	if w.ID, err = domain.ParseID(idStr); err != nil {
		return nil, err
	}
	if w.RestaurantID, err = domain.ParseID(restID); err != nil {
		return nil, err
	}
	w.Role = domain.WaiterRole(role)
	w.Tier = domain.WaiterTier(tier)
	if secID.Valid {
		if w.SectionID, err = domain.ParseID(secID.String); err != nil {
			return nil, err
		}
	}
	if w.LifetimeTips, err = decimal.NewFromString(lifetimeTips); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, err
	}
	return &w, nil
}

// ListCandidateWaiters returns every waiter on a non-ended shift, with its
// live ShiftSnapshot, per §4.1's list_candidate_waiters. Mode-based
// filtering (section vs rotation) and role exclusion happen in the
// router, which has the table-ownership context this query does not.
func (s *Store) ListCandidateWaiters(ctx context.Context, restaurantID domain.ID) ([]WaiterCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT w.id, w.restaurant_id, w.name, w.role, w.tier, w.composite_score, w.section_id,
			w.lifetime_shifts, w.lifetime_covers, w.lifetime_tips, w.created_at,
			sh.id, sh.tables_served, sh.covers, sh.tips
		 FROM waiters w
		 JOIN shifts sh ON sh.waiter_id = w.id
		 WHERE w.restaurant_id = ? AND sh.status != ?`,
		restaurantID.String(), string(domain.ShiftEnded))
	if err != nil {
		return nil, fmt.Errorf("list candidate waiters: %w", err)
	}
	defer rows.Close()

	var out []WaiterCandidate
	for rows.Next() {
		var (
			c                             WaiterCandidate
			idStr, restID                 string
			role, tier                    string
			secID                         sql.NullString
			lifetimeTips                  string
			created                       string
			shiftID                       string
			tips                          string
		)
		if err := rows.Scan(&idStr, &restID, &c.Waiter.Name, &role, &tier, &c.Waiter.CompositeScore, &secID,
			&c.Waiter.LifetimeShifts, &c.Waiter.LifetimeCovers, &lifetimeTips, &created,
			&shiftID, &c.Snapshot.CurrentTables, &c.Snapshot.Covers, &tips); err != nil {
			return nil, fmt.Errorf("scan candidate waiter: %w", err)
		}
		if c.Waiter.ID, err = domain.ParseID(idStr); err != nil {
			return nil, err
		}
		if c.Waiter.RestaurantID, err = domain.ParseID(restID); err != nil {
			return nil, err
		}
		c.Waiter.Role = domain.WaiterRole(role)
		c.Waiter.Tier = domain.WaiterTier(tier)
		if secID.Valid {
			if c.Waiter.SectionID, err = domain.ParseID(secID.String); err != nil {
				return nil, err
			}
		}
		if c.Waiter.LifetimeTips, err = decimal.NewFromString(lifetimeTips); err != nil {
			return nil, err
		}
		if c.Waiter.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, err
		}
		if c.Snapshot.ShiftID, err = domain.ParseID(shiftID); err != nil {
			return nil, err
		}
		if c.Snapshot.Tips, err = decimal.NewFromString(tips); err != nil {
			return nil, err
		}

		var lastActivity sql.NullString
		err = s.db.QueryRowContext(ctx,
			`SELECT MAX(COALESCE(payment_at, first_served_at, seated_at)) FROM visits WHERE waiter_id = ?`,
			c.Waiter.ID.String()).Scan(&lastActivity)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query last activity: %w", err)
		}
		if lastActivity.Valid {
			if c.Snapshot.LastActivityAt, err = time.Parse(timeLayout, lastActivity.String); err != nil {
				return nil, err
			}
		}

		var openTables int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM visits WHERE waiter_id = ? AND cleared_at IS NULL`,
			c.Waiter.ID.String()).Scan(&openTables); err != nil {
			return nil, fmt.Errorf("count open tables: %w", err)
		}
		c.Snapshot.CurrentTables = openTables

		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateWaiterCompositeScore persists a recomputed composite score (§4.9
// feeding back into §4.7's priority formula).
func (s *Store) UpdateWaiterCompositeScore(ctx context.Context, waiterID domain.ID, score float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE waiters SET composite_score = ? WHERE id = ?`, score, waiterID.String())
	if err != nil {
		return fmt.Errorf("update waiter composite score: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NotFound(component, "waiter not found: "+waiterID.String())
	}
	return nil
}
