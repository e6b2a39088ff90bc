package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/tablestate"
)

// CreateTable inserts a Table in the clean state.
func (s *Store) CreateTable(ctx context.Context, t *domain.Table) error {
	if t.ID.IsNil() {
		t.ID = domain.NewID()
	}
	if t.State == "" {
		t.State = domain.TableClean
	}
	t.StateUpdatedAt = time.Now().UTC()
	t.CreatedAt = t.StateUpdatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tables (id, restaurant_id, section_id, number, capacity, type, location, state,
			state_confidence, state_updated_at, current_visit_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.RestaurantID.String(), t.SectionID.String(), t.Number, t.Capacity,
		string(t.Type), string(t.Location), string(t.State), t.StateConfidence,
		t.StateUpdatedAt.Format(timeLayout), nullableID(t.CurrentVisitID), t.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert table: %w", err)
	}
	return nil
}

func nullableID(id domain.ID) interface{} {
	if id.IsNil() {
		return nil
	}
	return id.String()
}

// GetTable loads a Table by ID.
func (s *Store) GetTable(ctx context.Context, id domain.ID) (*domain.Table, error) {
	row := s.db.QueryRowContext(ctx, tableSelectSQL+` WHERE id = ?`, id.String())
	return scanTable(row)
}

const tableSelectSQL = `SELECT id, restaurant_id, section_id, number, capacity, type, location, state,
	state_confidence, state_updated_at, current_visit_id, created_at FROM tables`

func scanTable(row *sql.Row) (*domain.Table, error) {
	var (
		t                                      domain.Table
		id, restID, secID                      string
		typ, loc, state                        string
		stateUpdated, created                  string
		currentVisit                           sql.NullString
	)
	if err := row.Scan(&id, &restID, &secID, &t.Number, &t.Capacity, &typ, &loc, &state,
		&t.StateConfidence, &stateUpdated, &currentVisit, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(component, "table not found")
		}
		return nil, fmt.Errorf("scan table: %w", err)
	}
	return assembleTable(&t, id, restID, secID, typ, loc, state, stateUpdated, created, currentVisit)
}

func assembleTable(t *domain.Table, id, restID, secID, typ, loc, state, stateUpdated, created string, currentVisit sql.NullString) (*domain.Table, error) {
	var err error
	if t.ID, err = domain.ParseID(id); err != nil {
		return nil, err
	}
	if t.RestaurantID, err = domain.ParseID(restID); err != nil {
		return nil, err
	}
	if t.SectionID, err = domain.ParseID(secID); err != nil {
		return nil, err
	}
	t.Type = domain.TableType(typ)
	t.Location = domain.TableLocation(loc)
	t.State = domain.TableState(state)
	if t.StateUpdatedAt, err = time.Parse(timeLayout, stateUpdated); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, err
	}
	if currentVisit.Valid {
		if t.CurrentVisitID, err = domain.ParseID(currentVisit.String); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// TableMatch pairs a candidate Table with the detail the router needs to
// score and report it (§4.1, §4.7).
type TableMatch struct {
	Table         domain.Table
	ExcessSeats   int
	TypeMatch     bool
	LocationMatch bool
	PreferenceHit bool
}

// FindAvailableTables returns clean tables with capacity>=partySize,
// ordered by preference match (hits first) then excess-seats ascending,
// per §4.1.
func (s *Store) FindAvailableTables(ctx context.Context, restaurantID domain.ID, partySize int, tablePref domain.TablePreference, locPref domain.LocationPreference) ([]TableMatch, error) {
	rows, err := s.db.QueryContext(ctx, tableSelectSQL+
		` WHERE restaurant_id = ? AND state = ? AND capacity >= ? ORDER BY capacity ASC`,
		restaurantID.String(), string(domain.TableClean), partySize)
	if err != nil {
		return nil, fmt.Errorf("query available tables: %w", err)
	}
	defer rows.Close()

	var matches []TableMatch
	for rows.Next() {
		var (
			id, restID, secID      string
			typ, loc, state        string
			stateUpdated, created  string
			currentVisit           sql.NullString
			confidence             float64
			number, capacity       int
		)
		if err := rows.Scan(&id, &restID, &secID, &number, &capacity, &typ, &loc, &state,
			&confidence, &stateUpdated, &currentVisit, &created); err != nil {
			return nil, fmt.Errorf("scan available table: %w", err)
		}
		t := &domain.Table{Number: number, Capacity: capacity, StateConfidence: confidence}
		if _, err := assembleTable(t, id, restID, secID, typ, loc, state, stateUpdated, created, currentVisit); err != nil {
			return nil, err
		}

		tableHit := tablePref == domain.PreferNone || matchesTablePreference(t.Type, tablePref)
		locHit := locPref == domain.PreferNoLoc || matchesLocationPreference(t.Location, locPref)

		matches = append(matches, TableMatch{
			Table:         *t,
			ExcessSeats:   capacity - partySize,
			TypeMatch:     tableHit,
			LocationMatch: locHit,
			PreferenceHit: tableHit && locHit,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].PreferenceHit != matches[j].PreferenceHit {
			return matches[i].PreferenceHit
		}
		return matches[i].ExcessSeats < matches[j].ExcessSeats
	})
	return matches, nil
}

func matchesTablePreference(t domain.TableType, pref domain.TablePreference) bool {
	switch pref {
	case domain.PreferBooth:
		return t == domain.TableTypeBooth
	case domain.PreferBar:
		return t == domain.TableTypeBar
	case domain.PreferTable:
		return t == domain.TableTypeTable
	default:
		return true
	}
}

func matchesLocationPreference(l domain.TableLocation, pref domain.LocationPreference) bool {
	switch pref {
	case domain.PreferInside:
		return l == domain.LocationInside
	case domain.PreferOutside:
		return l == domain.LocationOutside
	case domain.PreferPatio:
		return l == domain.LocationPatio
	default:
		return true
	}
}

// UpdateTableState performs an atomic, invariant-enforced table state
// transition, per §4.1/§4.2. It delegates transition validity to
// tablestate.Evaluate and, on acceptance, appends exactly one
// TableStateLog row (unless the decision is a no-op).
func (s *Store) UpdateTableState(ctx context.Context, tableID domain.ID, next domain.TableState, confidence float64, source domain.StateSource, attribution string) (*domain.TableStateLog, error) {
	if errv := tablestate.ValidateSource(source); errv != nil {
		return nil, errv
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		currentState string
		currentConf  float64
	)
	err = tx.QueryRowContext(ctx, `SELECT state, state_confidence FROM tables WHERE id = ?`, tableID.String()).
		Scan(&currentState, &currentConf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(component, "table not found: "+tableID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("select table state: %w", err)
	}

	decision := tablestate.Evaluate(domain.TableState(currentState), next, currentConf, confidence, source)
	if !decision.Accept {
		return nil, domain.Invariant(component, decision.Reason)
	}
	if decision.Noop {
		return nil, nil
	}

	// current_visit_id is managed by SeatParty and CloseVisit/ClearVisit,
	// not here: this transition only ever changes state and confidence.
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE tables SET state = ?, state_confidence = ?, state_updated_at = ?
			WHERE id = ? AND state = ?`,
		string(next), confidence, now.Format(timeLayout), tableID.String(), currentState,
	)
	if err != nil {
		return nil, fmt.Errorf("update table state: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, domain.Conflict(component, "table state changed concurrently")
	}

	logEntry := &domain.TableStateLog{
		ID:          domain.NewID(),
		TableID:     tableID,
		Previous:    domain.TableState(currentState),
		Next:        next,
		Confidence:  confidence,
		Source:      source,
		Attribution: attribution,
		Timestamp:   now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO table_state_log (id, table_id, previous, next, confidence, source, attribution, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		logEntry.ID.String(), tableID.String(), string(logEntry.Previous), string(logEntry.Next),
		logEntry.Confidence, string(logEntry.Source), logEntry.Attribution, now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert table state log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit table state update: %w", err)
	}
	return logEntry, nil
}

// SeatParty atomically transitions a clean table to occupied and opens a
// Visit, guarding against double-seating via a CAS-style conditional
// update (§5 scenario 2, §8). Returns Conflict if the table is no longer
// clean by the time this executes.
func (s *Store) SeatParty(ctx context.Context, tableID, waiterID domain.ID, partySize int, waitlistEntryID domain.ID) (*domain.Visit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	visit := &domain.Visit{
		ID:              domain.NewID(),
		TableID:         tableID,
		WaiterID:        waiterID,
		PartySize:       partySize,
		WaitlistEntryID: waitlistEntryID,
		Milestones:      domain.Milestones{Seated: now},
		CreatedAt:       now,
	}

	var restaurantID string
	if err := tx.QueryRowContext(ctx, `SELECT restaurant_id FROM tables WHERE id = ? AND state = ?`,
		tableID.String(), string(domain.TableClean)).Scan(&restaurantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Conflict(component, "table is not clean; cannot seat")
		}
		return nil, fmt.Errorf("select table for seating: %w", err)
	}
	visit.RestaurantID, err = domain.ParseID(restaurantID)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tables SET state = ?, state_confidence = 1, state_updated_at = ?, current_visit_id = ?
		 WHERE id = ? AND state = ?`,
		string(domain.TableOccupied), now.Format(timeLayout), visit.ID.String(), tableID.String(), string(domain.TableClean),
	)
	if err != nil {
		return nil, fmt.Errorf("update table to occupied: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, domain.Conflict(component, "table seated concurrently")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO visits (id, restaurant_id, table_id, waiter_id, waitlist_entry_id, party_size, seated_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		visit.ID.String(), visit.RestaurantID.String(), tableID.String(), waiterID.String(),
		nullableID(waitlistEntryID), partySize, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert visit: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO table_state_log (id, table_id, previous, next, confidence, source, attribution, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		domain.NewID().String(), tableID.String(), string(domain.TableClean), string(domain.TableOccupied),
		1.0, string(domain.SourceSystem), "visit.seat", now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert seat table state log: %w", err)
	}

	if !waitlistEntryID.IsNil() {
		_, err = tx.ExecContext(ctx,
			`UPDATE waitlist_entries SET status = ?, visit_id = ? WHERE id = ? AND status = ?`,
			string(domain.WaitlistSeated), visit.ID.String(), waitlistEntryID.String(), string(domain.WaitlistWaiting),
		)
		if err != nil {
			return nil, fmt.Errorf("update waitlist entry on seat: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit seat party: %w", err)
	}
	return visit, nil
}
