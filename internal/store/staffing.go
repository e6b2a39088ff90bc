package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

// CreateShift opens a new Shift.
func (s *Store) CreateShift(ctx context.Context, sh *domain.Shift) error {
	if sh.ID.IsNil() {
		sh.ID = domain.NewID()
	}
	sh.Status = domain.ShiftActive
	sh.StartedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shifts (id, restaurant_id, waiter_id, status, tables_served, covers, tips, sales, started_at, ended_at)
		 VALUES (?, ?, ?, ?, 0, 0, '0', '0', ?, NULL)`,
		sh.ID.String(), sh.RestaurantID.String(), sh.WaiterID.String(), string(sh.Status), sh.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert shift: %w", err)
	}
	return nil
}

// EndShift closes an active/on-break shift.
func (s *Store) EndShift(ctx context.Context, shiftID domain.ID) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE shifts SET status = ?, ended_at = ? WHERE id = ? AND status != ?`,
		string(domain.ShiftEnded), now.Format(timeLayout), shiftID.String(), string(domain.ShiftEnded))
	if err != nil {
		return fmt.Errorf("end shift: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.Conflict(component, "shift already ended: "+shiftID.String())
	}
	return nil
}

// CreateStaffAvailability inserts a recurring weekly availability window.
func (s *Store) CreateStaffAvailability(ctx context.Context, a *domain.StaffAvailability) error {
	if a.ID.IsNil() {
		a.ID = domain.NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO staff_availability (id, waiter_id, day_of_week, start_minute, end_minute, type, effective_from, effective_to)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.WaiterID.String(), a.DayOfWeek, a.StartMinute, a.EndMinute, string(a.Type),
		a.EffectiveFrom.Format(timeLayout), nullableTime(a.EffectiveTo),
	)
	if err != nil {
		return fmt.Errorf("insert staff availability: %w", err)
	}
	return nil
}

// ListStaffAvailability returns every availability window for a waiter
// effective as of asOf.
func (s *Store) ListStaffAvailability(ctx context.Context, waiterID domain.ID, asOf time.Time) ([]domain.StaffAvailability, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, waiter_id, day_of_week, start_minute, end_minute, type, effective_from, effective_to
		 FROM staff_availability WHERE waiter_id = ? AND effective_from <= ?
		 AND (effective_to IS NULL OR effective_to >= ?)`,
		waiterID.String(), asOf.Format(timeLayout), asOf.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list staff availability: %w", err)
	}
	defer rows.Close()

	var out []domain.StaffAvailability
	for rows.Next() {
		var (
			a                  domain.StaffAvailability
			idStr, waiterStr   string
			typ                string
			from               string
			to                 sql.NullString
		)
		if err := rows.Scan(&idStr, &waiterStr, &a.DayOfWeek, &a.StartMinute, &a.EndMinute, &typ, &from, &to); err != nil {
			return nil, fmt.Errorf("scan staff availability: %w", err)
		}
		var err error
		if a.ID, err = domain.ParseID(idStr); err != nil {
			return nil, err
		}
		if a.WaiterID, err = domain.ParseID(waiterStr); err != nil {
			return nil, err
		}
		a.Type = domain.AvailabilityType(typ)
		if a.EffectiveFrom, err = time.Parse(timeLayout, from); err != nil {
			return nil, err
		}
		if to.Valid {
			t, err := time.Parse(timeLayout, to.String)
			if err != nil {
				return nil, err
			}
			a.EffectiveTo = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertStaffPreference stores a waiter's scheduling preferences.
func (s *Store) UpsertStaffPreference(ctx context.Context, p *domain.StaffPreference) error {
	roles, err := json.Marshal(p.PreferredRoles)
	if err != nil {
		return fmt.Errorf("marshal preferred roles: %w", err)
	}
	shifts, err := json.Marshal(p.PreferredShifts)
	if err != nil {
		return fmt.Errorf("marshal preferred shifts: %w", err)
	}
	sections, err := json.Marshal(p.PreferredSections)
	if err != nil {
		return fmt.Errorf("marshal preferred sections: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO staff_preferences (waiter_id, preferred_roles, preferred_shifts, preferred_sections,
			max_hours_per_week, min_hours_per_week, max_shifts_per_week, avoid_clopening)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(waiter_id) DO UPDATE SET
			preferred_roles = excluded.preferred_roles,
			preferred_shifts = excluded.preferred_shifts,
			preferred_sections = excluded.preferred_sections,
			max_hours_per_week = excluded.max_hours_per_week,
			min_hours_per_week = excluded.min_hours_per_week,
			max_shifts_per_week = excluded.max_shifts_per_week,
			avoid_clopening = excluded.avoid_clopening`,
		p.WaiterID.String(), string(roles), string(shifts), string(sections),
		p.MaxHoursPerWeek, p.MinHoursPerWeek, p.MaxShiftsPerWeek, boolToInt(p.AvoidClopening),
	)
	if err != nil {
		return fmt.Errorf("upsert staff preference: %w", err)
	}
	return nil
}

// GetStaffPreference loads a waiter's preferences, returning the §3
// zero-value defaults if none have been set.
func (s *Store) GetStaffPreference(ctx context.Context, waiterID domain.ID) (*domain.StaffPreference, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT waiter_id, preferred_roles, preferred_shifts, preferred_sections,
			max_hours_per_week, min_hours_per_week, max_shifts_per_week, avoid_clopening
		 FROM staff_preferences WHERE waiter_id = ?`, waiterID.String())

	var (
		waiterStr                  string
		roles, shifts, sections    string
		avoidClopening             int
		p                          domain.StaffPreference
	)
	err := row.Scan(&waiterStr, &roles, &shifts, &sections, &p.MaxHoursPerWeek, &p.MinHoursPerWeek, &p.MaxShiftsPerWeek, &avoidClopening)
	if err == sql.ErrNoRows {
		return &domain.StaffPreference{WaiterID: waiterID, MaxHoursPerWeek: 40, MaxShiftsPerWeek: 6}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan staff preference: %w", err)
	}
	p.WaiterID = waiterID
	if err := json.Unmarshal([]byte(roles), &p.PreferredRoles); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(shifts), &p.PreferredShifts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sections), &p.PreferredSections); err != nil {
		return nil, err
	}
	p.AvoidClopening = avoidClopening != 0
	return &p, nil
}

// CreateStaffingRequirement inserts one demand slot.
func (s *Store) CreateStaffingRequirement(ctx context.Context, r *domain.StaffingRequirement) error {
	if r.ID.IsNil() {
		r.ID = domain.NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO staffing_requirements (id, restaurant_id, day_of_week, start_minute, end_minute, role, min_count, max_count, is_prime_shift)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.RestaurantID.String(), r.DayOfWeek, r.StartMinute, r.EndMinute, string(r.Role),
		r.Min, r.Max, boolToInt(r.IsPrimeShift),
	)
	if err != nil {
		return fmt.Errorf("insert staffing requirement: %w", err)
	}
	return nil
}

// ListStaffingRequirements returns every demand slot for a restaurant.
func (s *Store) ListStaffingRequirements(ctx context.Context, restaurantID domain.ID) ([]domain.StaffingRequirement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, restaurant_id, day_of_week, start_minute, end_minute, role, min_count, max_count, is_prime_shift
		 FROM staffing_requirements WHERE restaurant_id = ?`, restaurantID.String())
	if err != nil {
		return nil, fmt.Errorf("list staffing requirements: %w", err)
	}
	defer rows.Close()

	var out []domain.StaffingRequirement
	for rows.Next() {
		var (
			r                domain.StaffingRequirement
			idStr, restID    string
			role             string
			isPrime          int
		)
		if err := rows.Scan(&idStr, &restID, &r.DayOfWeek, &r.StartMinute, &r.EndMinute, &role, &r.Min, &r.Max, &isPrime); err != nil {
			return nil, fmt.Errorf("scan staffing requirement: %w", err)
		}
		var err error
		if r.ID, err = domain.ParseID(idStr); err != nil {
			return nil, err
		}
		if r.RestaurantID, err = domain.ParseID(restID); err != nil {
			return nil, err
		}
		r.Role = domain.WaiterRole(role)
		r.IsPrimeShift = isPrime != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
