package store

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	log := zerolog.New(io.Discard)
	st, err := NewInMemory(log)
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedRestaurantAndTable(t *testing.T, st *Store, capacity int) (domain.ID, domain.ID) {
	t.Helper()
	ctx := context.Background()

	r := &domain.Restaurant{Name: "Test Bistro"}
	if err := st.CreateRestaurant(ctx, r); err != nil {
		t.Fatalf("CreateRestaurant: %v", err)
	}

	sec := &domain.Section{RestaurantID: r.ID, Name: "Main", Position: 0}
	if err := st.CreateSection(ctx, sec); err != nil {
		t.Fatalf("CreateSection: %v", err)
	}

	tbl := &domain.Table{
		RestaurantID: r.ID,
		SectionID:    sec.ID,
		Number:       1,
		Capacity:     capacity,
		Type:         domain.TableTypeTable,
		Location:     domain.LocationInside,
	}
	if err := st.CreateTable(ctx, tbl); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return r.ID, tbl.ID
}

func TestCreateAndGetTableDefaultsToClean(t *testing.T) {
	st := testStore(t)
	_, tableID := seedRestaurantAndTable(t, st, 4)

	got, err := st.GetTable(context.Background(), tableID)
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if got.State != domain.TableClean {
		t.Fatalf("expected a freshly created table to be clean, got %s", got.State)
	}
	if !got.CurrentVisitID.IsNil() {
		t.Fatal("expected no current visit on a freshly created table")
	}
}

func TestFindAvailableTablesRequiresCapacityAndClean(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	restaurantID, tableID := seedRestaurantAndTable(t, st, 2)

	matches, err := st.FindAvailableTables(ctx, restaurantID, 4, domain.PreferNone, domain.PreferNoLoc)
	if err != nil {
		t.Fatalf("FindAvailableTables: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches for a party larger than capacity, got %d", len(matches))
	}

	matches, err = st.FindAvailableTables(ctx, restaurantID, 2, domain.PreferNone, domain.PreferNoLoc)
	if err != nil {
		t.Fatalf("FindAvailableTables: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match for a party at capacity, got %d", len(matches))
	}

	if _, err := st.UpdateTableState(ctx, tableID, domain.TableOccupied, 0.9, domain.SourceHost, "test"); err != nil {
		t.Fatalf("UpdateTableState: %v", err)
	}
	matches, err = st.FindAvailableTables(ctx, restaurantID, 2, domain.PreferNone, domain.PreferNoLoc)
	if err != nil {
		t.Fatalf("FindAvailableTables: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches once the table is occupied, got %d", len(matches))
	}
}

func TestSeatPartyRejectsDoubleSeating(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	_, tableID := seedRestaurantAndTable(t, st, 4)
	waiterID := domain.NewID()

	visit, err := st.SeatParty(ctx, tableID, waiterID, 2, domain.NilID)
	if err != nil {
		t.Fatalf("SeatParty: %v", err)
	}
	if visit.TableID != tableID {
		t.Fatalf("expected visit for table %s, got %s", tableID, visit.TableID)
	}

	got, err := st.GetTable(ctx, tableID)
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if got.State != domain.TableOccupied {
		t.Fatalf("expected table to be occupied after seating, got %s", got.State)
	}
	if got.CurrentVisitID != visit.ID {
		t.Fatalf("expected current_visit_id %s, got %s", visit.ID, got.CurrentVisitID)
	}

	if _, err := st.SeatParty(ctx, tableID, waiterID, 2, domain.NilID); err == nil {
		t.Fatal("expected seating an already-occupied table to fail")
	}
}

func TestUpdateTableStateRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	_, tableID := seedRestaurantAndTable(t, st, 4)

	// clean -> dirty is not a recognized transition.
	if _, err := st.UpdateTableState(ctx, tableID, domain.TableDirty, 0.9, domain.SourceML, "test"); err == nil {
		t.Fatal("expected clean -> dirty to be rejected")
	}
}

func TestUpdateTableStatePreservesCurrentVisitID(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	_, tableID := seedRestaurantAndTable(t, st, 4)
	waiterID := domain.NewID()

	visit, err := st.SeatParty(ctx, tableID, waiterID, 2, domain.NilID)
	if err != nil {
		t.Fatalf("SeatParty: %v", err)
	}

	if _, err := st.UpdateTableState(ctx, tableID, domain.TableDirty, 0.9, domain.SourceML, "test"); err != nil {
		t.Fatalf("UpdateTableState: %v", err)
	}

	got, err := st.GetTable(ctx, tableID)
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if got.State != domain.TableDirty {
		t.Fatalf("expected table to be dirty, got %s", got.State)
	}
	if got.CurrentVisitID != visit.ID {
		t.Fatalf("expected current_visit_id to be left untouched by UpdateTableState, got %s want %s",
			got.CurrentVisitID, visit.ID)
	}
}
