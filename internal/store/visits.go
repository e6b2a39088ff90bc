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

// GetVisit loads a Visit by ID.
func (s *Store) GetVisit(ctx context.Context, id domain.ID) (*domain.Visit, error) {
	row := s.db.QueryRowContext(ctx, visitSelectSQL+` WHERE id = ?`, id.String())
	return scanVisit(row)
}

const visitSelectSQL = `SELECT id, restaurant_id, table_id, waiter_id, original_waiter_id, waitlist_entry_id,
	party_size, actual_covers, seated_at, first_served_at, payment_at, cleared_at,
	subtotal, tax, total, tip, tip_pct, duration_seconds, created_at FROM visits`

func scanVisit(row *sql.Row) (*domain.Visit, error) {
	var (
		v                                                domain.Visit
		id, restID, tableID, waiterID                    string
		originalWaiter, waitlistEntry                    sql.NullString
		seated, created                                  string
		firstServed, payment, cleared                    sql.NullString
		subtotal, tax, total, tip, tipPct                string
		durationSeconds                                  sql.NullInt64
	)
	if err := row.Scan(&id, &restID, &tableID, &waiterID, &originalWaiter, &waitlistEntry,
		&v.PartySize, &v.ActualCovers, &seated, &firstServed, &payment, &cleared,
		&subtotal, &tax, &total, &tip, &tipPct, &durationSeconds, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(component, "visit not found")
		}
		return nil, fmt.Errorf("scan visit: %w", err)
	}
	return assembleVisit(&v, id, restID, tableID, waiterID, originalWaiter, waitlistEntry,
		seated, firstServed, payment, cleared, subtotal, tax, total, tip, tipPct, durationSeconds, created)
}

func assembleVisit(v *domain.Visit, id, restID, tableID, waiterID string, originalWaiter, waitlistEntry sql.NullString,
	seated string, firstServed, payment, cleared sql.NullString, subtotal, tax, total, tip, tipPct string,
	durationSeconds sql.NullInt64, created string) (*domain.Visit, error) {
	var err error
	if v.ID, err = domain.ParseID(id); err != nil {
		return nil, err
	}
	if v.RestaurantID, err = domain.ParseID(restID); err != nil {
		return nil, err
	}
	if v.TableID, err = domain.ParseID(tableID); err != nil {
		return nil, err
	}
	if v.WaiterID, err = domain.ParseID(waiterID); err != nil {
		return nil, err
	}
	if originalWaiter.Valid {
		if v.OriginalWaiterID, err = domain.ParseID(originalWaiter.String); err != nil {
			return nil, err
		}
	}
	if waitlistEntry.Valid {
		if v.WaitlistEntryID, err = domain.ParseID(waitlistEntry.String); err != nil {
			return nil, err
		}
	}
	if v.Milestones.Seated, err = time.Parse(timeLayout, seated); err != nil {
		return nil, err
	}
	if firstServed.Valid {
		t, err := time.Parse(timeLayout, firstServed.String)
		if err != nil {
			return nil, err
		}
		v.Milestones.FirstServed = &t
	}
	if payment.Valid {
		t, err := time.Parse(timeLayout, payment.String)
		if err != nil {
			return nil, err
		}
		v.Milestones.Payment = &t
	}
	if cleared.Valid {
		t, err := time.Parse(timeLayout, cleared.String)
		if err != nil {
			return nil, err
		}
		v.Milestones.Cleared = &t
	}
	if v.Money.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, err
	}
	if v.Money.Tax, err = decimal.NewFromString(tax); err != nil {
		return nil, err
	}
	if v.Money.Total, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if v.Money.Tip, err = decimal.NewFromString(tip); err != nil {
		return nil, err
	}
	if v.Money.TipPct, err = decimal.NewFromString(tipPct); err != nil {
		return nil, err
	}
	if durationSeconds.Valid {
		d := time.Duration(durationSeconds.Int64) * time.Second
		v.Duration = &d
	}
	if v.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, err
	}
	return v, nil
}

// AttachVisitToTable reassigns an open Visit to a different waiter (a
// transfer), per §4.1's attach_visit_to_table. The original waiter is
// preserved the first time a transfer happens.
func (s *Store) AttachVisitToTable(ctx context.Context, visitID, newWaiterID domain.ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var currentWaiter string
	var originalWaiter sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT waiter_id, original_waiter_id FROM visits WHERE id = ? AND cleared_at IS NULL`,
		visitID.String()).Scan(&currentWaiter, &originalWaiter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(component, "open visit not found: "+visitID.String())
		}
		return fmt.Errorf("select visit for transfer: %w", err)
	}

	keepOriginal := currentWaiter
	if originalWaiter.Valid {
		keepOriginal = originalWaiter.String
	}

	if _, err := tx.ExecContext(ctx, `UPDATE visits SET waiter_id = ?, original_waiter_id = ? WHERE id = ?`,
		newWaiterID.String(), keepOriginal, visitID.String()); err != nil {
		return fmt.Errorf("update visit waiter: %w", err)
	}
	return tx.Commit()
}

// RecordVisitMilestone sets first_served_at, payment_at, or money fields
// on an open Visit. Called by the façade layer as service events arrive;
// kept here so every Visit mutation goes through the store.
func (s *Store) RecordVisitMilestone(ctx context.Context, visitID domain.ID, firstServedAt, paymentAt *time.Time, subtotal, tax, total, tip *decimal.Decimal) error {
	visit, err := s.GetVisit(ctx, visitID)
	if err != nil {
		return err
	}
	if visit.Milestones.Cleared != nil {
		return domain.Invariant(component, "visit already cleared: "+visitID.String())
	}

	if firstServedAt != nil {
		visit.Milestones.FirstServed = firstServedAt
	}
	if paymentAt != nil {
		visit.Milestones.Payment = paymentAt
	}
	if subtotal != nil {
		visit.Money.Subtotal = *subtotal
	}
	if tax != nil {
		visit.Money.Tax = *tax
	}
	if total != nil {
		visit.Money.Total = *total
	}
	if tip != nil {
		visit.Money.Tip = *tip
		if !visit.Money.Total.IsZero() {
			visit.Money.TipPct = visit.Money.Tip.Div(visit.Money.Total).Mul(decimal.NewFromInt(100))
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE visits SET first_served_at = ?, payment_at = ?, subtotal = ?, tax = ?, total = ?, tip = ?, tip_pct = ? WHERE id = ?`,
		nullableTime(visit.Milestones.FirstServed), nullableTime(visit.Milestones.Payment),
		visit.Money.Subtotal.String(), visit.Money.Tax.String(), visit.Money.Total.String(),
		visit.Money.Tip.String(), visit.Money.TipPct.String(), visitID.String(),
	)
	if err != nil {
		return fmt.Errorf("update visit milestone: %w", err)
	}
	return nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(timeLayout)
}

// CloseVisit clears a Visit and transitions its table to dirty, per §4.1's
// close_visit and §4.2's occupied→dirty transition.
func (s *Store) CloseVisit(ctx context.Context, visitID domain.ID, actualCovers int) (*domain.Visit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var tableID, seatedStr string
	if err := tx.QueryRowContext(ctx, `SELECT table_id, seated_at FROM visits WHERE id = ? AND cleared_at IS NULL`,
		visitID.String()).Scan(&tableID, &seatedStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(component, "open visit not found: "+visitID.String())
		}
		return nil, fmt.Errorf("select visit for close: %w", err)
	}
	seated, err := time.Parse(timeLayout, seatedStr)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	duration := now.Sub(seated)

	if _, err := tx.ExecContext(ctx,
		`UPDATE visits SET cleared_at = ?, actual_covers = ?, duration_seconds = ? WHERE id = ?`,
		now.Format(timeLayout), actualCovers, int64(duration.Seconds()), visitID.String()); err != nil {
		return nil, fmt.Errorf("update visit close: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tables SET state = ?, state_confidence = 1, state_updated_at = ?, current_visit_id = NULL
		 WHERE id = ? AND state = ?`,
		string(domain.TableDirty), now.Format(timeLayout), tableID, string(domain.TableOccupied))
	if err != nil {
		return nil, fmt.Errorf("update table to dirty on close: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, domain.Conflict(component, "table not occupied at close time")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO table_state_log (id, table_id, previous, next, confidence, source, attribution, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		domain.NewID().String(), tableID, string(domain.TableOccupied), string(domain.TableDirty),
		1.0, string(domain.SourceSystem), "visit.clear", now.Format(timeLayout)); err != nil {
		return nil, fmt.Errorf("insert close table state log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit close visit: %w", err)
	}
	return s.GetVisit(ctx, visitID)
}
