package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

// CreateWaitlistEntry inserts a waiting party.
func (s *Store) CreateWaitlistEntry(ctx context.Context, w *domain.WaitlistEntry) error {
	if w.ID.IsNil() {
		w.ID = domain.NewID()
	}
	w.Status = domain.WaitlistWaiting
	w.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO waitlist_entries (id, restaurant_id, party_size, table_preference, location_preference,
			hard_preference, status, visit_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID.String(), w.RestaurantID.String(), w.PartySize, string(w.TablePreference), string(w.LocationPreference),
		boolToInt(w.HardPreference), string(w.Status), nullableID(w.VisitID), w.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

// GetWaitlistEntry loads a WaitlistEntry by ID.
func (s *Store) GetWaitlistEntry(ctx context.Context, id domain.ID) (*domain.WaitlistEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, restaurant_id, party_size, table_preference, location_preference, hard_preference,
			status, visit_id, created_at FROM waitlist_entries WHERE id = ?`, id.String())

	var (
		idStr, restID     string
		tablePref, locPref string
		hardPref          int
		status            string
		visitID           sql.NullString
		created           string
		w                 domain.WaitlistEntry
	)
	if err := row.Scan(&idStr, &restID, &w.PartySize, &tablePref, &locPref, &hardPref, &status, &visitID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(component, "waitlist entry not found")
		}
		return nil, fmt.Errorf("scan waitlist entry: %w", err)
	}
	var err error
	if w.ID, err = domain.ParseID(idStr); err != nil {
		return nil, err
	}
	if w.RestaurantID, err = domain.ParseID(restID); err != nil {
		return nil, err
	}
	w.TablePreference = domain.TablePreference(tablePref)
	w.LocationPreference = domain.LocationPreference(locPref)
	w.HardPreference = hardPref != 0
	w.Status = domain.WaitlistStatus(status)
	if visitID.Valid {
		if w.VisitID, err = domain.ParseID(visitID.String); err != nil {
			return nil, err
		}
	}
	if w.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, err
	}
	return &w, nil
}

// MarkWaitlistWalkedAway sets a waiting entry's terminal non-seated state.
func (s *Store) MarkWaitlistWalkedAway(ctx context.Context, id domain.ID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = ? WHERE id = ? AND status = ?`,
		string(domain.WaitlistWalkedAway), id.String(), string(domain.WaitlistWaiting))
	if err != nil {
		return fmt.Errorf("mark waitlist walked away: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.Conflict(component, "waitlist entry not waiting: "+id.String())
	}
	return nil
}
