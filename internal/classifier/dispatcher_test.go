package classifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfred-ops/restaurant-core/internal/crop"
	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

// stubMapper maps every json_table_id to a single fixed table.
type stubMapper struct {
	tableID domain.ID
	ok      bool
}

func (m stubMapper) TableID(ctx context.Context, cameraID domain.ID, jsonTableID string) (domain.ID, bool) {
	return m.tableID, m.ok
}

func testStoreWithTable(t *testing.T) (*store.Store, domain.ID) {
	t.Helper()
	st, err := store.NewInMemory(zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

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
		Capacity:     4,
		Type:         domain.TableTypeTable,
		Location:     domain.LocationInside,
	}
	if err := st.CreateTable(ctx, tbl); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return st, tbl.ID
}

func jsonResponder(t *testing.T, status int, result Result) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(result)
		}
	}
}

func TestDispatchSuccessUpdatesTableState(t *testing.T) {
	st, tableID := testStoreWithTable(t)
	srv := httptest.NewServer(jsonResponder(t, http.StatusOK, Result{Label: LabelOccupied, Confidence: 0.8}))
	defer srv.Close()

	d := New(st, stubMapper{tableID: tableID, ok: true}, srv.URL, 4, 2*time.Second, zerolog.New(io.Discard))
	tc := crop.TableCrop{JSONTableID: "t1", ImageBytes: []byte("fake")}

	if err := d.Dispatch(context.Background(), domain.NewID(), tc, 1, time.Now()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got, err := st.GetTable(context.Background(), tableID)
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if got.State != domain.TableOccupied {
		t.Fatalf("expected table to become occupied, got %s", got.State)
	}
}

func TestDispatchDedupesSameFrame(t *testing.T) {
	st, tableID := testStoreWithTable(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(Result{Label: LabelClean, Confidence: 0.9})
	}))
	defer srv.Close()

	d := New(st, stubMapper{tableID: tableID, ok: true}, srv.URL, 4, 2*time.Second, zerolog.New(io.Discard))
	tc := crop.TableCrop{JSONTableID: "t1", ImageBytes: []byte("fake")}
	cameraID := domain.NewID()

	if err := d.Dispatch(context.Background(), cameraID, tc, 7, time.Now()); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if err := d.Dispatch(context.Background(), cameraID, tc, 7, time.Now()); err != nil {
		t.Fatalf("second Dispatch (duplicate frame): %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected the classifier endpoint to be hit once, got %d", calls)
	}
}

func TestDispatchUnmappedTableIsDropped(t *testing.T) {
	st, _ := testStoreWithTable(t)
	srv := httptest.NewServer(jsonResponder(t, http.StatusOK, Result{Label: LabelDirty, Confidence: 0.7}))
	defer srv.Close()

	d := New(st, stubMapper{ok: false}, srv.URL, 4, 2*time.Second, zerolog.New(io.Discard))
	tc := crop.TableCrop{JSONTableID: "unmapped", ImageBytes: []byte("fake")}

	if err := d.Dispatch(context.Background(), domain.NewID(), tc, 1, time.Now()); err != nil {
		t.Fatalf("expected an unmapped table to be dropped without error, got %v", err)
	}
}

func TestDispatchAuthErrorIsNotRetried(t *testing.T) {
	st, tableID := testStoreWithTable(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := New(st, stubMapper{tableID: tableID, ok: true}, srv.URL, 4, 2*time.Second, zerolog.New(io.Discard))
	tc := crop.TableCrop{JSONTableID: "t1", ImageBytes: []byte("fake")}

	if err := d.Dispatch(context.Background(), domain.NewID(), tc, 1, time.Now()); err == nil {
		t.Fatal("expected an auth error to surface as a dispatch failure")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one attempt for a permanent auth error, got %d", calls)
	}
}

func TestDispatchBackpressureDropsBeyondInFlightCap(t *testing.T) {
	st, tableID := testStoreWithTable(t)
	srv := httptest.NewServer(jsonResponder(t, http.StatusOK, Result{Label: LabelClean, Confidence: 0.9}))
	defer srv.Close()

	d := New(st, stubMapper{tableID: tableID, ok: true}, srv.URL, 1, 2*time.Second, zerolog.New(io.Discard))
	cameraID := domain.NewID()

	// Saturate the single in-flight slot for this camera before dispatching.
	sem := d.sem.get(cameraID, d.maxInFlight)
	if !sem.TryAcquire(1) {
		t.Fatal("expected to acquire the semaphore directly")
	}
	defer sem.Release(1)

	tc := crop.TableCrop{JSONTableID: "t1", ImageBytes: []byte("fake")}
	if err := d.Dispatch(context.Background(), cameraID, tc, 1, time.Now()); err != nil {
		t.Fatalf("expected backpressure to drop silently, got error %v", err)
	}

	got, err := st.GetTable(context.Background(), tableID)
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if got.State != domain.TableClean {
		t.Fatalf("expected the dropped dispatch to leave table state untouched, got %s", got.State)
	}
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	st, tableID := testStoreWithTable(t)
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(Result{Label: LabelOccupied, Confidence: 0.6})
	}))
	defer srv.Close()

	d := New(st, stubMapper{tableID: tableID, ok: true}, srv.URL, 4, 2*time.Second, zerolog.New(io.Discard))
	tc := crop.TableCrop{JSONTableID: "t1", ImageBytes: []byte("fake")}

	if err := d.Dispatch(context.Background(), domain.NewID(), tc, 1, time.Now()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got, err := st.GetTable(context.Background(), tableID)
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if got.State != domain.TableOccupied {
		t.Fatalf("expected the third attempt to succeed and apply the result, got %s", got.State)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts (2 retries), got %d", calls)
	}
}
